package services

import (
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_ActivateValidation(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*models.WorkflowStep
		wantErr error
	}{
		{name: "no steps", steps: nil, wantErr: ErrStepsRequired},
		{name: "no leading trigger", steps: []*models.WorkflowStep{testutil.NotifyAction("a1")}, wantErr: ErrTriggerStepRequired},
		{
			name:    "approval without approvers",
			steps:   []*models.WorkflowStep{testutil.Trigger("t1"), testutil.Approval("ap1", 0)},
			wantErr: ErrInvalidStep,
		},
		{
			name: "unknown condition type",
			steps: []*models.WorkflowStep{
				testutil.Trigger("t1"),
				testutil.Condition("c1", "between", "1", "2", nil, nil),
			},
			wantErr: ErrInvalidStep,
		},
		{
			name: "duplicate ids in one list",
			steps: []*models.WorkflowStep{
				testutil.Trigger("t1"),
				testutil.NotifyAction("a1"),
				testutil.NotifyAction("a1"),
			},
			wantErr: ErrInvalidStep,
		},
		{
			name: "duplicate ids in one branch",
			steps: []*models.WorkflowStep{
				testutil.Trigger("t1"),
				testutil.Condition("c1", models.ConditionIsTrue, "x", "",
					[]*models.WorkflowStep{testutil.NotifyAction("b1"), testutil.NotifyAction("b1")}, nil),
			},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "action config rejected by schema",
			steps:   []*models.WorkflowStep{testutil.Trigger("t1"), testutil.EmailAction("a1", "")},
			wantErr: ErrInvalidStep,
		},
		{
			name: "same id in separate lists",
			steps: []*models.WorkflowStep{
				testutil.Trigger("t1"),
				testutil.Condition("c1", models.ConditionIsTrue, "x", "",
					[]*models.WorkflowStep{testutil.NotifyAction("t1")},
					[]*models.WorkflowStep{testutil.NotifyAction("t1")}),
			},
		},
		{
			name: "action without action type",
			steps: []*models.WorkflowStep{
				testutil.Trigger("t1"),
				testutil.CreateTestStep(models.StepTypeAction, testutil.WithActionType("")),
			},
		},
		{
			name: "valid",
			steps: []*models.WorkflowStep{
				testutil.Trigger("t1"),
				testutil.Condition("c1", models.ConditionGreaterThan, "120", "100",
					[]*models.WorkflowStep{testutil.Approval("ap1", 2, "board")},
					[]*models.WorkflowStep{testutil.EmailAction("a1", "owner@example.com")}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newWorkflowService(t)
			wf := createWithSteps(t, service, tt.steps...)

			activated, err := service.Activate(t.Context(), wf.ID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err))

				stored, fetchErr := service.FetchByID(t.Context(), wf.ID)
				require.NoError(t, fetchErr)
				assert.Equal(t, models.WorkflowStatusDraft, stored.Status)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.WorkflowStatusActive, activated.Status)
		})
	}
}

func TestWorkflow_ActivateDeactivate(t *testing.T) {
	service := newWorkflowService(t)
	wf := createWithSteps(t, service, testutil.Trigger("t1"), testutil.NotifyAction("a1"))

	_, err := service.Deactivate(t.Context(), wf.ID)
	require.ErrorIs(t, err, ErrNotActive)
	assert.True(t, IsConflictError(err))

	_, err = service.Activate(t.Context(), wf.ID)
	require.NoError(t, err)

	_, err = service.Activate(t.Context(), wf.ID)
	require.ErrorIs(t, err, ErrAlreadyActive)

	deactivated, err := service.Deactivate(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusInactive, deactivated.Status)

	_, err = service.Activate(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}
