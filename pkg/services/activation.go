package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/stepflow/pkg/condition"
	"github.com/dukex/stepflow/pkg/models"
)

// Activate validates the workflow and marks it active so that triggers start runs of it.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, workflowID)
	}

	err = w.validateForActivation(workflow)
	if err != nil {
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}

	return w.saveStatus(ctx, workflow, models.WorkflowStatusActive)
}

// Deactivate stops triggers from starting runs of the workflow. Runs in flight are not affected.
func (w *Workflow) Deactivate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, workflowID)
	}

	return w.saveStatus(ctx, workflow, models.WorkflowStatusInactive)
}

func (w *Workflow) saveStatus(ctx context.Context, workflow *models.Workflow, status models.WorkflowStatus) (*models.Workflow, error) {
	previous := workflow.Status
	workflow.Status = status
	workflow.UpdatedAt = w.now()

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow status: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow status changed", "workflow_id", workflow.ID, "from", previous, "to", status)

	return workflow, nil
}

// validateForActivation ensures a workflow can be run.
func (w *Workflow) validateForActivation(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if len(workflow.Steps) == 0 {
		return ErrStepsRequired
	}

	if workflow.Steps[0].Type != models.StepTypeTrigger {
		return ErrTriggerStepRequired
	}

	errs := validateSteps(workflow.Steps)

	if w.registry != nil {
		err := w.registry.ValidateSteps(workflow.Steps)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidStep, err))
		}
	}

	return errors.Join(errs...)
}

// validateSteps checks each list on its own; step ids only need to be unique within their list.
func validateSteps(steps []*models.WorkflowStep) []error {
	var errs []error

	seen := make(map[string]bool, len(steps))

	for _, step := range steps {
		if seen[step.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate step id %q", ErrInvalidStep, step.ID))
		}

		seen[step.ID] = true

		err := validateStep(step)
		if err != nil {
			errs = append(errs, err)
		}

		if step.Type == models.StepTypeCondition {
			errs = append(errs, validateSteps(step.TrueSteps)...)
			errs = append(errs, validateSteps(step.FalseSteps)...)
		}
	}

	return errs
}

func validateStep(step *models.WorkflowStep) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: step %s: %s", ErrInvalidStep, step.ID, reason)
	}

	switch {
	case step.ID == "":
		return fmt.Errorf("%w: step without id", ErrInvalidStep)
	case step.Type == models.StepTypeTrigger && step.TriggerType == "":
		return invalid("trigger type is required")
	case step.Type == models.StepTypeCondition && !condition.Known(step.ConditionType):
		return invalid(fmt.Sprintf("unknown condition type %q", step.ConditionType))
	case step.Type == models.StepTypeApproval && step.RequiredApprovals < 1:
		return invalid("required approvals must be at least 1")
	}

	switch step.Type {
	case models.StepTypeTrigger, models.StepTypeAction, models.StepTypeCondition, models.StepTypeApproval:
		return nil
	default:
		return invalid(fmt.Sprintf("unknown step type %q", step.Type))
	}
}
