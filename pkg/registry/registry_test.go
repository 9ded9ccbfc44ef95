package registry_test

import (
	"log/slog"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Components(t *testing.T) {
	r := registry.NewDefaultRegistry(slog.Default())

	components := r.Components()
	require.Len(t, components, 5)
	assert.Equal(t, models.ActionTypeEmail, components[0].Type)
	assert.Equal(t, models.ComponentKindTrigger, components[4].Kind)

	email, ok := r.Component(models.ComponentKindAction, models.ActionTypeEmail)
	require.True(t, ok)
	assert.Equal(t, []string{"to"}, email.Schema.Required)

	_, ok = r.Component(models.ComponentKindTrigger, models.ActionTypeEmail)
	assert.False(t, ok)
}

func TestRegistry_ValidateStep(t *testing.T) {
	r := registry.NewDefaultRegistry(slog.Default())

	schedule := func(config map[string]any) *models.WorkflowStep {
		return testutil.CreateTestStep(models.StepTypeTrigger, func(s *models.WorkflowStep) {
			s.TriggerType = models.TriggerTypeSchedule
			s.Config = config
		})
	}

	tests := []struct {
		name    string
		step    *models.WorkflowStep
		wantErr bool
	}{
		{name: "valid email", step: testutil.EmailAction("a1", "owner@example.com")},
		{name: "email without recipient", step: testutil.CreateTestStep(models.StepTypeAction, testutil.WithActionType(models.ActionTypeEmail)), wantErr: true},
		{
			name: "notification with unknown type",
			step: testutil.CreateTestStep(models.StepTypeAction, testutil.WithConfig(map[string]any{"title": "x", "type": "loud"})),
			wantErr: true,
		},
		{name: "valid notification", step: testutil.NotifyAction("a2")},
		{name: "unregistered action type passes", step: testutil.CreateTestStep(models.StepTypeAction, testutil.WithActionType("foo"))},
		{name: "valid schedule", step: schedule(map[string]any{"cron": "0 9 * * 1", "timezone": "America/New_York"})},
		{name: "schedule with bad cron", step: schedule(map[string]any{"cron": "every monday"}), wantErr: true},
		{name: "schedule with bad timezone", step: schedule(map[string]any{"cron": "0 9 * * 1", "timezone": "Mars/Olympus"}), wantErr: true},
		{name: "schedule without cron", step: schedule(nil), wantErr: true},
		{name: "condition has no config schema", step: testutil.Condition("c1", models.ConditionEquals, "", "", nil, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateStep(tt.step)
			if tt.wantErr {
				require.ErrorIs(t, err, registry.ErrInvalidConfig)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRegistry_ValidateStepsWalksBranches(t *testing.T) {
	r := registry.NewDefaultRegistry(slog.Default())

	broken := testutil.CreateTestStep(models.StepTypeAction, testutil.WithID("broken"), testutil.WithActionType(models.ActionTypeTask), testutil.WithConfig(map[string]any{}))

	steps := []*models.WorkflowStep{
		testutil.Trigger("t1"),
		testutil.Condition("c1", models.ConditionIsTrue, "x", "", nil, []*models.WorkflowStep{broken}),
	}

	err := r.ValidateSteps(steps)
	require.ErrorIs(t, err, registry.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "broken")

	require.NoError(t, r.ValidateSteps(steps[:1]))
}
