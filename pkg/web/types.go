// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/dukex/stepflow/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
	Owner       string                 `json:"owner"`
	Variables   map[string]any         `json:"variables"`
	Steps       []*models.WorkflowStep `json:"steps"       validate:"dive"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// AddStepRequest represents the request body for adding a step. An empty AfterID inserts
// the step first.
type AddStepRequest struct {
	Type    models.StepType `json:"type"     validate:"required,oneof=trigger action condition approval"`
	AfterID string          `json:"after_id"`
}

// MoveStepRequest represents the request body for moving a step.
type MoveStepRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

// SetStepsRequest represents the request body for replacing a step list.
type SetStepsRequest struct {
	Steps []*models.WorkflowStep `json:"steps" validate:"required,dive"`
}

// CancelRunRequest represents the request body for cancelling a run.
type CancelRunRequest struct {
	Reason string `json:"reason"`
}

// RunResponse is a run without its internal cursor.
type RunResponse struct {
	models.WorkflowExecutionLog

	WorkflowName  string               `json:"workflow_name"`
	FailurePolicy models.FailurePolicy `json:"failure_policy"`
	TriggerData   map[string]any       `json:"trigger_data,omitempty"`
}

// TransformRunResponse builds the response body of a run.
func TransformRunResponse(run *models.WorkflowRun) RunResponse {
	return RunResponse{
		WorkflowExecutionLog: run.Log,
		WorkflowName:         run.WorkflowName,
		FailurePolicy:        run.FailurePolicy,
		TriggerData:          run.TriggerData,
	}
}
