package models

import "time"

// ExecutionStatus is the status of a step execution or of a whole run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// StepExecutionLog records one step execution attempt.
type StepExecutionLog struct {
	StepID    string          `json:"step_id"`
	Started   time.Time       `json:"started"`
	Completed *time.Time      `json:"completed,omitempty"`
	Status    ExecutionStatus `json:"status"`
	Output    map[string]any  `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Failed reports whether the step execution failed.
func (l StepExecutionLog) Failed() bool {
	return l.Status == ExecutionStatusFailed
}

// WorkflowExecutionLog records one run of a workflow. StepLogs only holds steps on the taken path.
type WorkflowExecutionLog struct {
	ID                string             `json:"id"`
	WorkflowID        string             `json:"workflow_id"`
	Started           time.Time          `json:"started"`
	Completed         *time.Time         `json:"completed,omitempty"`
	Status            ExecutionStatus    `json:"status"`
	StepLogs          []StepExecutionLog `json:"step_logs"`
	AwaitingApproval  bool               `json:"awaiting_approval"`
	PendingApprovalID string             `json:"pending_approval_id,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// IsTerminal reports whether the run reached completed or failed.
func (l *WorkflowExecutionLog) IsTerminal() bool {
	return l.Status == ExecutionStatusCompleted || l.Status == ExecutionStatusFailed
}
