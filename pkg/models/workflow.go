// Package models defines the core domain models for step-based workflow automation
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, runnable only as a test run
	WorkflowStatusActive   WorkflowStatus = "active"   // Triggers fire runs
	WorkflowStatusInactive WorkflowStatus = "inactive" // Kept for history, not runnable
)

// Workflow is a user-authored automation: an ordered list of steps starting at a trigger.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                 validate:"required,min=3"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Status      WorkflowStatus  `json:"status"               validate:"omitempty,oneof=draft active inactive"`
	Steps       []*WorkflowStep `json:"steps"                validate:"dive"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Owner       string          `json:"owner,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsRunnable reports whether triggers may start runs of the workflow.
func (w *Workflow) IsRunnable() bool {
	return w.Status == WorkflowStatusActive
}

// TriggerStep returns the first top-level trigger step, if any.
func (w *Workflow) TriggerStep() *WorkflowStep {
	for _, step := range w.Steps {
		if step.Type == StepTypeTrigger {
			return step
		}
	}

	return nil
}
