package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/dukex/stepflow/pkg/approval"
	"github.com/dukex/stepflow/pkg/executor"
	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	coordinator *workflow.Coordinator
	gate        *approval.Gate
	emails      *mocks.MockEmailSender
	notifier    *mocks.MockNotifier
}

func newHarness(t *testing.T, opts ...workflow.Option) *harness {
	t.Helper()

	root := t.TempDir()
	h := &harness{
		emails:   &mocks.MockEmailSender{},
		notifier: &mocks.MockNotifier{},
	}

	h.gate = approval.NewGate(file.NewApprovalRepository(root), slog.Default())

	exec := executor.New(slog.Default(),
		executor.WithEmailSender(h.emails),
		executor.WithNotifier(h.notifier),
		executor.WithApprovalInitiator(h.gate))

	opts = append([]workflow.Option{workflow.WithApprovalCanceller(h.gate)}, opts...)
	h.coordinator = workflow.NewCoordinator(file.NewRunRepository(root), exec, slog.Default(), opts...)
	h.gate.AddListener(h.coordinator)

	h.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return h
}

func stepIDs(run *models.WorkflowRun) []string {
	ids := make([]string, 0, len(run.Log.StepLogs))
	for _, log := range run.Log.StepLogs {
		ids = append(ids, log.StepID)
	}

	return ids
}

func TestCoordinator_LinearRunCompletes(t *testing.T) {
	h := newHarness(t)
	h.emails.On("SendEmail", mock.Anything, "owner@example.com", mock.Anything, mock.Anything).Return(nil)

	wf := testutil.CreateTestWorkflow(
		testutil.Trigger("t1"),
		testutil.EmailAction("a1", "owner@example.com"),
		testutil.NotifyAction("a2"),
	)

	run, err := h.coordinator.Start(context.Background(), wf, workflow.StartOptions{TriggerData: map[string]any{"unit": "12B"}})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, run.Log.Status)
	assert.Equal(t, []string{"t1", "a1", "a2"}, stepIDs(run))
	assert.NotNil(t, run.Log.Completed)
	assert.Empty(t, run.Log.Error)

	stored, err := h.coordinator.Run(context.Background(), run.ID())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Log.Status)
	assert.Equal(t, "12B", stored.TriggerData["unit"])

	runs, err := h.coordinator.RunsByWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestCoordinator_ConditionBranches(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		expected []string
	}{
		{name: "true branch", field: "10", expected: []string{"t1", "c1", "yes-1", "yes-2", "after"}},
		{name: "false branch", field: "1", expected: []string{"t1", "c1", "no-1", "after"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			wf := testutil.CreateTestWorkflow(
				testutil.Trigger("t1"),
				testutil.Condition("c1", models.ConditionGreaterThan, tt.field, "5",
					[]*models.WorkflowStep{testutil.NotifyAction("yes-1"), testutil.NotifyAction("yes-2")},
					[]*models.WorkflowStep{testutil.NotifyAction("no-1")}),
				testutil.NotifyAction("after"),
			)

			run, err := h.coordinator.Start(context.Background(), wf, workflow.StartOptions{})
			require.NoError(t, err)

			assert.Equal(t, models.ExecutionStatusCompleted, run.Log.Status)
			assert.Equal(t, tt.expected, stepIDs(run))
		})
	}
}

func TestCoordinator_NestedConditionsAndEmptyBranch(t *testing.T) {
	h := newHarness(t)

	inner := testutil.Condition("c2", models.ConditionEquals, "a", "a",
		[]*models.WorkflowStep{testutil.NotifyAction("inner-yes")}, nil)

	wf := testutil.CreateTestWorkflow(
		testutil.Condition("c1", models.ConditionIsTrue, "yes", "",
			[]*models.WorkflowStep{inner, testutil.NotifyAction("outer-yes")}, nil),
		testutil.Condition("c3", models.ConditionIsFalse, "yes", "", nil, nil),
		testutil.NotifyAction("end"),
	)

	run, err := h.coordinator.Start(context.Background(), wf, workflow.StartOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2", "inner-yes", "outer-yes", "c3", "end"}, stepIDs(run))
	assert.Equal(t, models.ExecutionStatusCompleted, run.Log.Status)
}

func TestCoordinator_FailurePolicies(t *testing.T) {
	tests := []struct {
		name           string
		policy         models.FailurePolicy
		expectedStatus models.ExecutionStatus
		expectedSteps  []string
	}{
		{name: "halt by default", policy: "", expectedStatus: models.ExecutionStatusFailed, expectedSteps: []string{"t1", "a1"}},
		{name: "continue", policy: models.FailurePolicyContinue, expectedStatus: models.ExecutionStatusCompleted, expectedSteps: []string{"t1", "a1", "a2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.emails.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

			wf := testutil.CreateTestWorkflow(
				testutil.Trigger("t1"),
				testutil.EmailAction("a1", "owner@example.com"),
				testutil.NotifyAction("a2"),
			)

			run, err := h.coordinator.Start(context.Background(), wf, workflow.StartOptions{FailurePolicy: tt.policy})
			require.NoError(t, err)

			assert.Equal(t, tt.expectedStatus, run.Log.Status)
			assert.Equal(t, tt.expectedSteps, stepIDs(run))
			assert.Equal(t, models.ExecutionStatusFailed, run.Log.StepLogs[1].Status)

			if tt.expectedStatus == models.ExecutionStatusFailed {
				assert.Contains(t, run.Log.Error, "step a1 failed")
			}
		})
	}
}

func TestCoordinator_InvalidFailurePolicy(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.Start(context.Background(), testutil.CreateTestWorkflow(), workflow.StartOptions{FailurePolicy: "retry"})
	require.ErrorIs(t, err, workflow.ErrInvalidFailurePolicy)
}

func TestCoordinator_WorkflowStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inactive := testutil.CreateTestWorkflow(testutil.Trigger("t1"))
	inactive.Status = models.WorkflowStatusInactive

	_, err := h.coordinator.Start(ctx, inactive, workflow.StartOptions{AllowDraft: true})
	require.ErrorIs(t, err, workflow.ErrWorkflowNotActive)

	draft := testutil.CreateTestWorkflow(testutil.Trigger("t1"))
	draft.Status = models.WorkflowStatusDraft

	_, err = h.coordinator.Start(ctx, draft, workflow.StartOptions{})
	require.ErrorIs(t, err, workflow.ErrWorkflowNotActive)

	run, err := h.coordinator.Start(ctx, draft, workflow.StartOptions{AllowDraft: true})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, run.Log.Status)
}

func TestCoordinator_UnknownStepTypeDoesNotAbortRun(t *testing.T) {
	h := newHarness(t)

	wf := testutil.CreateTestWorkflow(
		testutil.Trigger("t1"),
		&models.WorkflowStep{ID: "weird", Name: "Wait a day", Type: "delay"},
		testutil.NotifyAction("after"),
	)

	run, err := h.coordinator.Start(context.Background(), wf, workflow.StartOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, run.Log.Status)
	assert.Empty(t, run.Log.Error)
	assert.Equal(t, []string{"t1", "weird", "after"}, stepIDs(run))
	assert.Equal(t, true, run.Log.StepLogs[1].Output["skipped"])
}

func approvalWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow(
		testutil.Trigger("t1"),
		testutil.Approval("ap", 2, "board"),
		testutil.NotifyAction("after-approval"),
	)
}

func TestCoordinator_ApprovalSuspendsAndResumesThroughGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.coordinator.Start(ctx, approvalWorkflow(), workflow.StartOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusRunning, run.Log.Status)
	assert.True(t, run.Log.AwaitingApproval)
	assert.Equal(t, []string{"t1", "ap"}, stepIDs(run))
	require.NotEmpty(t, run.Log.PendingApprovalID)

	approvalID := run.Log.PendingApprovalID

	_, err = h.gate.ProcessApproval(ctx, approvalID, &models.Actor{ID: "u1", Role: "board"}, models.ApprovalActionApprove, "")
	require.NoError(t, err)

	waiting, err := h.coordinator.Run(ctx, run.ID())
	require.NoError(t, err)
	assert.True(t, waiting.Log.AwaitingApproval)

	_, err = h.gate.ProcessApproval(ctx, approvalID, &models.Actor{ID: "u2", Role: "board"}, models.ApprovalActionApprove, "")
	require.NoError(t, err)

	finished, err := h.coordinator.Run(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, finished.Log.Status)
	assert.False(t, finished.Log.AwaitingApproval)
	assert.Equal(t, []string{"t1", "ap", "after-approval"}, stepIDs(finished))
}

func TestCoordinator_RejectionFailsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.coordinator.Start(ctx, approvalWorkflow(), workflow.StartOptions{})
	require.NoError(t, err)

	_, err = h.gate.ProcessApproval(ctx, run.Log.PendingApprovalID, &models.Actor{ID: "u1", Role: "board"}, models.ApprovalActionReject, "not this year")
	require.NoError(t, err)

	finished, err := h.coordinator.Run(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Log.Status)
	assert.Contains(t, finished.Log.Error, "rejected")
	assert.Equal(t, []string{"t1", "ap"}, stepIDs(finished))
}

func TestCoordinator_ApprovalInsideBranchResumesParentList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow(
		testutil.Condition("c1", models.ConditionEquals, "x", "x",
			[]*models.WorkflowStep{testutil.Approval("ap", 1), testutil.NotifyAction("in-branch")}, nil),
		testutil.NotifyAction("after-branch"),
	)

	run, err := h.coordinator.Start(ctx, wf, workflow.StartOptions{})
	require.NoError(t, err)
	require.True(t, run.Log.AwaitingApproval)

	resumed, err := h.coordinator.Resume(ctx, run.ID(), models.ApprovalStatusApproved)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Log.Status)
	assert.Equal(t, []string{"c1", "ap", "in-branch", "after-branch"}, stepIDs(resumed))
}

func TestCoordinator_LiveEditsDoNotAffectRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := approvalWorkflow()

	run, err := h.coordinator.Start(ctx, wf, workflow.StartOptions{})
	require.NoError(t, err)

	wf.Steps[2].ID = "edited"
	wf.Steps = append(wf.Steps, testutil.NotifyAction("added-later"))

	resumed, err := h.coordinator.Resume(ctx, run.ID(), models.ApprovalStatusApproved)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "ap", "after-approval"}, stepIDs(resumed))
}

func TestCoordinator_ResumeErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	completed, err := h.coordinator.Start(ctx, testutil.CreateTestWorkflow(testutil.Trigger("t1")), workflow.StartOptions{})
	require.NoError(t, err)

	_, err = h.coordinator.Resume(ctx, completed.ID(), models.ApprovalStatusApproved)
	require.ErrorIs(t, err, workflow.ErrRunFinished)

	suspended, err := h.coordinator.Start(ctx, approvalWorkflow(), workflow.StartOptions{})
	require.NoError(t, err)

	_, err = h.coordinator.Resume(ctx, suspended.ID(), models.ApprovalStatusPending)
	require.ErrorIs(t, err, workflow.ErrInvalidDecision)

	err = h.coordinator.OnApprovalResolved(ctx, &models.PendingApproval{
		ID:     "someone-else",
		RunID:  suspended.ID(),
		Status: models.ApprovalStatusApproved,
	})
	require.NoError(t, err)

	still, err := h.coordinator.Run(ctx, suspended.ID())
	require.NoError(t, err)
	assert.True(t, still.Log.AwaitingApproval)
}

func TestCoordinator_Cancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.coordinator.Start(ctx, approvalWorkflow(), workflow.StartOptions{})
	require.NoError(t, err)

	cancelled, err := h.coordinator.Cancel(ctx, run.ID(), "board meeting postponed")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, cancelled.Log.Status)
	assert.Equal(t, "cancelled: board meeting postponed", cancelled.Log.Error)
	assert.False(t, cancelled.Log.AwaitingApproval)

	_, err = h.coordinator.Cancel(ctx, run.ID(), "")
	require.ErrorIs(t, err, workflow.ErrRunFinished)

	pending, err := h.gate.Get(ctx, run.Log.PendingApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusCancelled, pending.Status)

	_, err = h.gate.ProcessApproval(ctx, run.Log.PendingApprovalID, &models.Actor{ID: "u1", Role: "board"}, models.ApprovalActionReject, "")
	require.ErrorIs(t, err, approval.ErrApprovalResolved)

	final, err := h.coordinator.Run(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, "cancelled: board meeting postponed", final.Log.Error)
}

func TestParseFailurePolicy(t *testing.T) {
	policy, err := workflow.ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, models.FailurePolicyHalt, policy)

	policy, err = workflow.ParseFailurePolicy("continue")
	require.NoError(t, err)
	assert.Equal(t, models.FailurePolicyContinue, policy)

	_, err = workflow.ParseFailurePolicy("skip")
	require.ErrorIs(t, err, workflow.ErrInvalidFailurePolicy)
}

type flakyRunRepository struct {
	persistence.RunRepository

	failSaves atomic.Int32
}

func (r *flakyRunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	if r.failSaves.Add(-1) >= 0 {
		return errors.New("write timeout")
	}

	return r.RunRepository.Save(ctx, run)
}

func TestCoordinator_ResumeAfterFailedResolution(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	notifier := &mocks.MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	gate := approval.NewGate(file.NewApprovalRepository(root), slog.Default())
	exec := executor.New(slog.Default(), executor.WithNotifier(notifier), executor.WithApprovalInitiator(gate))
	runs := &flakyRunRepository{RunRepository: file.NewRunRepository(root)}
	coordinator := workflow.NewCoordinator(runs, exec, slog.Default())
	gate.AddListener(coordinator)

	wf := testutil.CreateTestWorkflow(
		testutil.Trigger("t1"),
		testutil.Approval("ap", 1),
		testutil.NotifyAction("after-approval"),
	)

	run, err := coordinator.Start(ctx, wf, workflow.StartOptions{})
	require.NoError(t, err)
	require.True(t, run.Log.AwaitingApproval)

	runs.failSaves.Store(1)

	resolved, err := gate.ProcessApproval(ctx, run.Log.PendingApprovalID, &models.Actor{ID: "u1"}, models.ApprovalActionApprove, "")
	require.ErrorIs(t, err, approval.ErrResumeFailed)
	assert.Contains(t, err.Error(), "write timeout")
	assert.Equal(t, models.ApprovalStatusApproved, resolved.Status)

	stranded, err := coordinator.Run(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, stranded.Log.Status)
	assert.True(t, stranded.Log.AwaitingApproval)

	resumed, err := coordinator.ResumeAfter(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Log.Status)
	assert.Equal(t, []string{"t1", "ap", "after-approval"}, stepIDs(resumed))

	_, err = coordinator.ResumeAfter(ctx, resolved)
	require.ErrorIs(t, err, workflow.ErrRunFinished)
}

func TestCoordinator_ResumeAfterOtherApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.coordinator.Start(ctx, approvalWorkflow(), workflow.StartOptions{})
	require.NoError(t, err)

	_, err = h.coordinator.ResumeAfter(ctx, &models.PendingApproval{
		ID:     "someone-else",
		RunID:  run.ID(),
		Status: models.ApprovalStatusApproved,
	})
	require.ErrorIs(t, err, workflow.ErrRunNotAwaitingApproval)
}
