// Package events defines event types and structures for workflow run notifications.
package events

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every stepflow event.
const Topic = "stepflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent          EventType = "run.started"
	RunCompletedEvent        EventType = "run.completed"
	RunFailedEvent           EventType = "run.failed"
	RunAwaitingApprovalEvent EventType = "run.awaiting_approval"
	StepExecutedEvent        EventType = "step.executed"

	// Approval gate events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalResolvedEvent  EventType = "approval.resolved"

	// Collaborator requests, consumed by delivery workers.
	NotificationRequestedEvent EventType = "notification.requested"
	EmailRequestedEvent        EventType = "email.requested"
	TaskRequestedEvent         EventType = "task.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type RunStarted struct {
	BaseEvent

	RunID       string         `json:"run_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunAwaitingApproval struct {
	BaseEvent

	RunID      string `json:"run_id"`
	StepID     string `json:"step_id"`
	ApprovalID string `json:"approval_id"`
}

func (e RunAwaitingApproval) GetType() EventType {
	return RunAwaitingApprovalEvent
}

type StepExecuted struct {
	BaseEvent

	RunID    string                 `json:"run_id"`
	StepID   string                 `json:"step_id"`
	StepType models.StepType        `json:"step_type"`
	Status   models.ExecutionStatus `json:"status"`
	Error    string                 `json:"error,omitempty"`
}

func (e StepExecuted) GetType() EventType {
	return StepExecutedEvent
}

type ApprovalRequested struct {
	BaseEvent

	ApprovalID        string   `json:"approval_id"`
	RunID             string   `json:"run_id"`
	StepID            string   `json:"step_id"`
	RequiredApprovals int      `json:"required_approvals"`
	ApproverRoles     []string `json:"approver_roles,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalResolved struct {
	BaseEvent

	ApprovalID string                `json:"approval_id"`
	RunID      string                `json:"run_id"`
	StepID     string                `json:"step_id"`
	Status     models.ApprovalStatus `json:"status"`
}

func (e ApprovalResolved) GetType() EventType {
	return ApprovalResolvedEvent
}

type NotificationRequested struct {
	BaseEvent

	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

type EmailRequested struct {
	BaseEvent

	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (e EmailRequested) GetType() EventType {
	return EmailRequestedEvent
}

type TaskRequested struct {
	BaseEvent

	Title      string         `json:"title"`
	AssignedTo string         `json:"assigned_to"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e TaskRequested) GetType() EventType {
	return TaskRequestedEvent
}
