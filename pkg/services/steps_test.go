package services

import (
	"testing"

	"github.com/dukex/stepflow/pkg/editor"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(steps []*models.WorkflowStep) []string {
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.ID)
	}

	return out
}

func createWithSteps(t *testing.T, service *Workflow, steps ...*models.WorkflowStep) *models.Workflow {
	t.Helper()

	created, err := service.Create(t.Context(), &models.Workflow{Name: "Step editing", Steps: steps})
	require.NoError(t, err)

	return created
}

func TestWorkflow_AddStep(t *testing.T) {
	service := newWorkflowService(t)
	wf := createWithSteps(t, service, testutil.Trigger("t1"), testutil.NotifyAction("a1"))

	added, err := service.AddStep(t.Context(), wf.ID, StepLocation{}, "t1", models.StepTypeApproval)
	require.NoError(t, err)
	assert.Equal(t, models.StepTypeApproval, added.Type)
	assert.Equal(t, 1, added.RequiredApprovals)

	first, err := service.AddStep(t.Context(), wf.ID, StepLocation{}, "", models.StepTypeTrigger)
	require.NoError(t, err)

	stored, err := service.FetchByID(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, "t1", added.ID, "a1"}, ids(stored.Steps))

	_, err = service.AddStep(t.Context(), wf.ID, StepLocation{}, "missing", models.StepTypeAction)
	require.ErrorIs(t, err, ErrStepNotFound)

	_, err = service.AddStep(t.Context(), wf.ID, StepLocation{}, "t1", "webhook")
	require.ErrorIs(t, err, ErrInvalidStepType)

	stored, err = service.FetchByID(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 4, "failed edits change nothing")
}

func TestWorkflow_EditBranch(t *testing.T) {
	service := newWorkflowService(t)
	wf := createWithSteps(t, service,
		testutil.Trigger("t1"),
		testutil.Condition("c1", models.ConditionIsTrue, "yes", "",
			[]*models.WorkflowStep{testutil.NotifyAction("yes-1")},
			nil),
	)

	trueBranch := StepLocation{Path: []models.BranchRef{{StepID: "c1", Branch: models.BranchTrue}}}
	falseBranch := StepLocation{Path: []models.BranchRef{{StepID: "c1", Branch: models.BranchFalse}}}

	nested, err := service.AddStep(t.Context(), wf.ID, falseBranch, "", models.StepTypeCondition)
	require.NoError(t, err)

	_, err = service.AddStep(t.Context(), wf.ID, trueBranch, "yes-1", models.StepTypeAction)
	require.NoError(t, err)

	deep := StepLocation{Path: []models.BranchRef{
		{StepID: "c1", Branch: models.BranchFalse},
		{StepID: nested.ID, Branch: models.BranchTrue},
	}}

	leaf, err := service.AddStep(t.Context(), wf.ID, deep, "", models.StepTypeAction)
	require.NoError(t, err)

	stored, err := service.FetchByID(t.Context(), wf.ID)
	require.NoError(t, err)

	require.Len(t, stored.Steps, 2, "branch edits never touch the top level")
	condition := stored.Steps[1]
	assert.Len(t, condition.TrueSteps, 2)
	require.Len(t, condition.FalseSteps, 1)
	assert.Equal(t, []string{leaf.ID}, ids(condition.FalseSteps[0].TrueSteps))

	stored, err = service.MoveStep(t.Context(), wf.ID, trueBranch, "yes-1", editor.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, "yes-1", stored.Steps[1].TrueSteps[1].ID)

	stored, err = service.RemoveStep(t.Context(), wf.ID, falseBranch, nested.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Steps[1].FalseSteps)

	_, err = service.AddStep(t.Context(), wf.ID, StepLocation{Path: []models.BranchRef{{StepID: "t1", Branch: models.BranchTrue}}}, "", models.StepTypeAction)
	require.ErrorIs(t, err, ErrStepNotFound, "only condition steps have branches")
}

func TestWorkflow_UpdateStep(t *testing.T) {
	service := newWorkflowService(t)
	wf := createWithSteps(t, service, testutil.Trigger("t1"), testutil.Approval("ap1", 1))

	required := 3
	name := "Board vote"

	stored, err := service.UpdateStep(t.Context(), wf.ID, StepLocation{}, "ap1", models.StepPatch{
		Name:              &name,
		RequiredApprovals: &required,
		ApproverRoles:     []string{"board"},
	})
	require.NoError(t, err)

	step := stored.Steps[1]
	assert.Equal(t, "Board vote", step.Name)
	assert.Equal(t, 3, step.RequiredApprovals)
	assert.Equal(t, []string{"board"}, step.ApproverRoles)
	assert.Equal(t, models.StepTypeApproval, step.Type)

	zero := 0
	_, err = service.UpdateStep(t.Context(), wf.ID, StepLocation{}, "ap1", models.StepPatch{RequiredApprovals: &zero})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = service.UpdateStep(t.Context(), wf.ID, StepLocation{}, "missing", models.StepPatch{Name: &name})
	require.ErrorIs(t, err, ErrStepNotFound)
}

func TestWorkflow_MoveResetAndSetSteps(t *testing.T) {
	service := newWorkflowService(t)
	wf := createWithSteps(t, service, testutil.Trigger("t1"), testutil.NotifyAction("a1"), testutil.NotifyAction("a2"))

	stored, err := service.MoveStep(t.Context(), wf.ID, StepLocation{}, "a2", editor.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "a2", "a1"}, ids(stored.Steps))

	stored, err = service.MoveStep(t.Context(), wf.ID, StepLocation{}, "t1", editor.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "a2", "a1"}, ids(stored.Steps))

	_, err = service.MoveStep(t.Context(), wf.ID, StepLocation{}, "a1", "left")
	require.ErrorIs(t, err, ErrInvalidDirection)

	stored, err = service.ResetSteps(t.Context(), wf.ID, StepLocation{})
	require.NoError(t, err)
	assert.Empty(t, stored.Steps)

	stored, err = service.SetSteps(t.Context(), wf.ID, StepLocation{}, []*models.WorkflowStep{testutil.Trigger("t9")})
	require.NoError(t, err)
	assert.Equal(t, []string{"t9"}, ids(stored.Steps))

	_, err = service.SetSteps(t.Context(), wf.ID, StepLocation{}, []*models.WorkflowStep{{ID: "x", Type: "bogus"}})
	require.ErrorIs(t, err, ErrInvalidRequest)
}
