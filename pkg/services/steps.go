package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/stepflow/pkg/editor"
	"github.com/dukex/stepflow/pkg/models"
)

// StepLocation addresses a step list of a workflow: the top level when Path is empty,
// otherwise the branch reached by following each condition step and branch in turn.
type StepLocation struct {
	Path []models.BranchRef `json:"path,omitempty"`
}

// AddStep inserts a new step of the given type after the step afterID, or first in the list
// when afterID is empty.
func (w *Workflow) AddStep(
	ctx context.Context,
	workflowID string,
	location StepLocation,
	afterID string,
	stepType models.StepType,
) (*models.WorkflowStep, error) {
	var added *models.WorkflowStep

	_, err := w.editSteps(ctx, workflowID, location, func(ed *editor.Editor) error {
		if afterID == "" {
			added = ed.AddFirst(stepType)
		} else {
			if !containsStep(ed, afterID) {
				return fmt.Errorf("%w: %s", ErrStepNotFound, afterID)
			}

			added = ed.AddStep(afterID, stepType)
		}

		if added == nil {
			return NewValidationError("AddStep", "INVALID_STEP_TYPE", fmt.Sprintf("unknown step type '%s'", stepType), ErrInvalidStepType)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return added, nil
}

// UpdateStep merges the patch into a step. The step type never changes.
func (w *Workflow) UpdateStep(
	ctx context.Context,
	workflowID string,
	location StepLocation,
	stepID string,
	patch models.StepPatch,
) (*models.Workflow, error) {
	err := w.validate.Struct(patch)
	if err != nil {
		return nil, NewValidationError("UpdateStep", "INVALID_STEP_PATCH", err.Error(), ErrInvalidRequest)
	}

	return w.editSteps(ctx, workflowID, location, func(ed *editor.Editor) error {
		if !ed.UpdateStep(stepID, patch) {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		return nil
	})
}

// RemoveStep deletes a step together with its branches.
func (w *Workflow) RemoveStep(ctx context.Context, workflowID string, location StepLocation, stepID string) (*models.Workflow, error) {
	return w.editSteps(ctx, workflowID, location, func(ed *editor.Editor) error {
		if !containsStep(ed, stepID) {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		ed.RemoveStep(stepID)

		return nil
	})
}

// MoveStep swaps a step with its neighbour. Moving past either end of the list is a no-op.
func (w *Workflow) MoveStep(
	ctx context.Context,
	workflowID string,
	location StepLocation,
	stepID string,
	direction editor.Direction,
) (*models.Workflow, error) {
	if direction != editor.DirectionUp && direction != editor.DirectionDown {
		return nil, NewValidationError("MoveStep", "INVALID_DIRECTION", fmt.Sprintf("invalid direction '%s', allowed: up, down", direction), ErrInvalidDirection)
	}

	return w.editSteps(ctx, workflowID, location, func(ed *editor.Editor) error {
		if !containsStep(ed, stepID) {
			return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
		}

		ed.MoveStep(stepID, direction)

		return nil
	})
}

// ResetSteps empties a step list.
func (w *Workflow) ResetSteps(ctx context.Context, workflowID string, location StepLocation) (*models.Workflow, error) {
	return w.editSteps(ctx, workflowID, location, func(ed *editor.Editor) error {
		ed.ResetSteps()

		return nil
	})
}

// SetSteps replaces a step list.
func (w *Workflow) SetSteps(
	ctx context.Context,
	workflowID string,
	location StepLocation,
	steps []*models.WorkflowStep,
) (*models.Workflow, error) {
	for _, step := range steps {
		if step == nil {
			return nil, NewValidationError("SetSteps", "INVALID_STEPS", "steps cannot contain null", ErrInvalidRequest)
		}

		err := w.validate.Struct(step)
		if err != nil {
			return nil, NewValidationError("SetSteps", "INVALID_STEPS", err.Error(), ErrInvalidRequest)
		}
	}

	return w.editSteps(ctx, workflowID, location, func(ed *editor.Editor) error {
		ed.SetWorkflowSteps(steps)

		return nil
	})
}

func (w *Workflow) editSteps(
	ctx context.Context,
	workflowID string,
	location StepLocation,
	edit func(ed *editor.Editor) error,
) (*models.Workflow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	root := editor.New(workflow.Steps)

	target := root
	for _, ref := range location.Path {
		target = target.Branch(ref.StepID, ref.Branch)
		if target == nil {
			return nil, fmt.Errorf("%w: condition %s", ErrStepNotFound, ref.StepID)
		}
	}

	err = edit(target)
	if err != nil {
		return nil, err
	}

	workflow.Steps = root.Steps()
	workflow.UpdatedAt = w.now()

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow steps: %w", err)
	}

	return workflow, nil
}

func containsStep(ed *editor.Editor, id string) bool {
	return slices.ContainsFunc(ed.Steps(), func(step *models.WorkflowStep) bool {
		return step.ID == id
	})
}
