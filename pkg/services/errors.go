// Package services provides the operations the API exposes over workflows, their steps, runs and approvals.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/stepflow/pkg/approval"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid workflow status")
	ErrEmptyOwnerID     = errors.New("owner ID cannot be empty")
	ErrInvalidStepType  = errors.New("invalid step type")
	ErrInvalidDirection = errors.New("invalid move direction")

	// Activation Validation Errors (400 Bad Request).
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrStepsRequired        = errors.New("workflow must have at least one step")
	ErrTriggerStepRequired  = errors.New("workflow must start with a trigger step")
	ErrInvalidStep          = errors.New("invalid step")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")

	// Not Found Errors (404 Not Found).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrRunNotFound      = persistence.ErrRunNotFound
	ErrApprovalNotFound = persistence.ErrApprovalNotFound
	ErrStepNotFound     = errors.New("step not found")

	// Business Logic Conflicts (409 Conflict).
	ErrAlreadyActive = errors.New("workflow is already active")
	ErrNotActive     = errors.New("workflow is not active")

	// ErrApprovalPending is returned when resuming a run whose approval has no decision yet.
	ErrApprovalPending = errors.New("approval is still pending")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrInvalidStepType) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrTriggerStepRequired) ||
		errors.Is(err, ErrInvalidStep) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, workflow.ErrInvalidFailurePolicy) ||
		errors.Is(err, workflow.ErrInvalidDecision) ||
		errors.Is(err, approval.ErrInvalidAction)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrApprovalNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrApprovalPending) ||
		errors.Is(err, workflow.ErrWorkflowNotActive) ||
		errors.Is(err, workflow.ErrRunFinished) ||
		errors.Is(err, workflow.ErrRunNotAwaitingApproval) ||
		errors.Is(err, persistence.ErrApprovalConflict) ||
		approval.IsConflict(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
