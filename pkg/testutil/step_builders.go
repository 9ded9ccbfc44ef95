// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestStep creates a test WorkflowStep of the given type with overridable defaults.
func CreateTestStep(stepType models.StepType, overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	step := &models.WorkflowStep{
		ID:   uuid.New().String(),
		Name: "Test Step",
		Type: stepType,
	}

	switch stepType {
	case models.StepTypeTrigger:
		step.TriggerType = models.TriggerTypeManual
	case models.StepTypeAction:
		step.ActionType = models.ActionTypeNotification
		step.Config = map[string]any{"title": "Test", "message": "test"}
	case models.StepTypeCondition:
		step.ConditionType = models.ConditionEquals
	case models.StepTypeApproval:
		step.RequiredApprovals = 1
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// Trigger creates a manual trigger step.
func Trigger(id string) *models.WorkflowStep {
	return CreateTestStep(models.StepTypeTrigger, WithID(id))
}

// EmailAction creates an email action step sending to the given address.
func EmailAction(id, to string) *models.WorkflowStep {
	return CreateTestStep(models.StepTypeAction, WithID(id), WithActionType(models.ActionTypeEmail), WithConfig(map[string]any{
		"to":          to,
		"subject":     "Notice",
		"body":        "Hello",
		"template_id": "tpl-1",
	}))
}

// NotifyAction creates a notification action step.
func NotifyAction(id string) *models.WorkflowStep {
	return CreateTestStep(models.StepTypeAction, WithID(id))
}

// Condition creates a condition step with the given branches.
func Condition(id string, conditionType models.ConditionType, field, value string, trueSteps, falseSteps []*models.WorkflowStep) *models.WorkflowStep {
	return CreateTestStep(models.StepTypeCondition, WithID(id), func(s *models.WorkflowStep) {
		s.ConditionType = conditionType
		s.Field = field
		s.Value = value
		s.TrueSteps = trueSteps
		s.FalseSteps = falseSteps
	})
}

// Approval creates an approval step.
func Approval(id string, required int, roles ...string) *models.WorkflowStep {
	return CreateTestStep(models.StepTypeApproval, WithID(id), func(s *models.WorkflowStep) {
		s.RequiredApprovals = required
		s.ApproverRoles = roles
	})
}

// WithID sets the step id.
func WithID(id string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.ID = id
	}
}

// WithName sets the step name.
func WithName(name string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Name = name
	}
}

// WithActionType sets the action type.
func WithActionType(actionType string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.ActionType = actionType
	}
}

// WithConfig sets the step configuration.
func WithConfig(config map[string]any) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Config = config
	}
}

// CreateTestWorkflow creates an active workflow holding the given steps.
func CreateTestWorkflow(steps ...*models.WorkflowStep) *models.Workflow {
	return &models.Workflow{
		ID:     uuid.New().String(),
		Name:   "Test Workflow",
		Status: models.WorkflowStatusActive,
		Steps:  steps,
	}
}
