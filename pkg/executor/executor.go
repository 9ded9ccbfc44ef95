// Package executor runs a single workflow step and records the outcome as a StepExecutionLog.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/condition"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/notify"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrCollaboratorMissing is recorded when a step needs a collaborator the executor was built without.
var ErrCollaboratorMissing = errors.New("collaborator not configured")

// ApprovalInitiator opens a pending approval for an approval step.
type ApprovalInitiator interface {
	Initiate(ctx context.Context, runID, workflowID string, step *models.WorkflowStep) (*models.PendingApproval, error)
}

// Executor dispatches a step on its type and performs its side effect through collaborators.
type Executor struct {
	emails    notify.EmailSender
	notifier  notify.Notifier
	tasks     notify.TaskCreator
	approvals ApprovalInitiator
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

func WithEmailSender(sender notify.EmailSender) Option {
	return func(e *Executor) { e.emails = sender }
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(e *Executor) { e.notifier = notifier }
}

func WithTaskCreator(creator notify.TaskCreator) Option {
	return func(e *Executor) { e.tasks = creator }
}

func WithApprovalInitiator(initiator ApprovalInitiator) Option {
	return func(e *Executor) { e.approvals = initiator }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an executor. Collaborators that are not supplied make the matching steps fail.
func New(logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: logger.With("module", "step_executor"),
		tracer: noop.NewTracerProvider().Tracer("stepflow"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ExecuteStep runs one step. It never returns an error: failures, including panics raised by
// collaborators, are recorded on the returned log with status failed.
func (e *Executor) ExecuteStep(ctx context.Context, step *models.WorkflowStep, execCtx models.ExecutionContext) (log models.StepExecutionLog) {
	started := e.now()

	log = models.StepExecutionLog{
		Started: started,
		Status:  models.ExecutionStatusRunning,
	}

	if step == nil {
		return e.fail(log, errors.New("step is nil"))
	}

	log.StepID = step.ID

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "step.execute",
		attribute.String(otelhelper.RunIDKey, execCtx.RunID),
		attribute.String(otelhelper.WorkflowIDKey, execCtx.WorkflowID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)
	defer span.End()

	logger := e.logger.With("run_id", execCtx.RunID, "step_id", step.ID, "step_type", step.Type)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("step panicked: %v", r)
			logger.ErrorContext(ctx, "Step execution panicked", "panic", r)
			otelhelper.SetError(span, err)

			log = e.fail(log, err)
		}
	}()

	output, err := e.dispatch(ctx, step, execCtx)
	if err != nil {
		logger.ErrorContext(ctx, "Step execution failed", "error", err)
		otelhelper.SetError(span, err)

		return e.fail(log, err)
	}

	completed := e.now()
	log.Completed = &completed
	log.Status = models.ExecutionStatusCompleted
	log.Output = output

	span.SetStatus(codes.Ok, "step completed")
	logger.DebugContext(ctx, "Step executed", "duration", completed.Sub(started))

	return log
}

func (e *Executor) fail(log models.StepExecutionLog, err error) models.StepExecutionLog {
	completed := e.now()
	log.Completed = &completed
	log.Status = models.ExecutionStatusFailed
	log.Error = err.Error()
	log.Output = nil

	return log
}

func (e *Executor) dispatch(ctx context.Context, step *models.WorkflowStep, execCtx models.ExecutionContext) (map[string]any, error) {
	switch step.Type {
	case models.StepTypeAction:
		return e.executeAction(ctx, step, execCtx)
	case models.StepTypeCondition:
		return e.evaluateCondition(step), nil
	case models.StepTypeApproval:
		return e.initiateApproval(ctx, step, execCtx)
	case models.StepTypeTrigger:
		return map[string]any{
			"triggered": true,
			"timestamp": e.timestamp(),
		}, nil
	default:
		// unknown step types complete as skipped
		e.logger.WarnContext(ctx, "Skipping step of unknown type", "step_id", step.ID, "step_type", step.Type)

		return map[string]any{
			"executed":  false,
			"skipped":   true,
			"step_type": string(step.Type),
			"timestamp": e.timestamp(),
		}, nil
	}
}

func (e *Executor) executeAction(ctx context.Context, step *models.WorkflowStep, execCtx models.ExecutionContext) (map[string]any, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otelhelper.ActionTypeKey, step.ActionType))

	switch step.ActionType {
	case models.ActionTypeEmail:
		config := models.EmailConfigFrom(step.Config)
		if e.emails == nil {
			return nil, fmt.Errorf("email: %w", ErrCollaboratorMissing)
		}

		err := e.emails.SendEmail(ctx, config.To, config.Subject, config.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to send email: %w", err)
		}

		return map[string]any{
			"sent":        true,
			"to":          config.To,
			"template_id": config.TemplateID,
			"timestamp":   e.timestamp(),
		}, nil

	case models.ActionTypeNotification:
		config := models.NotificationConfigFrom(step.Config)
		if e.notifier == nil {
			return nil, fmt.Errorf("notification: %w", ErrCollaboratorMissing)
		}

		err := e.notifier.Notify(ctx, config.Type, config.Title, config.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to send notification: %w", err)
		}

		return map[string]any{
			"notified":  true,
			"type":      config.Type,
			"timestamp": e.timestamp(),
		}, nil

	case models.ActionTypeTask:
		config := models.TaskConfigFrom(step.Config)
		if e.tasks == nil {
			return nil, fmt.Errorf("task: %w", ErrCollaboratorMissing)
		}

		details := map[string]any{
			"description": config.Description,
			"due_date":    config.DueDate,
			"run_id":      execCtx.RunID,
			"workflow_id": execCtx.WorkflowID,
		}

		err := e.tasks.CreateTask(ctx, config.Title, config.AssignedTo, details)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}

		return map[string]any{
			"task_created": true,
			"title":        config.Title,
			"assigned_to":  config.AssignedTo,
			"timestamp":    e.timestamp(),
		}, nil

	default:
		return map[string]any{
			"executed":  true,
			"timestamp": e.timestamp(),
		}, nil
	}
}

// evaluateCondition compares the step's literal field and value. Unknown operators evaluate to false.
func (e *Executor) evaluateCondition(step *models.WorkflowStep) map[string]any {
	return map[string]any{
		"condition_result": condition.Evaluate(step.ConditionType, step.Field, step.Value),
		"field":            step.Field,
		"operator":         string(step.ConditionType),
		"value":            step.Value,
		"timestamp":        e.timestamp(),
	}
}

func (e *Executor) initiateApproval(ctx context.Context, step *models.WorkflowStep, execCtx models.ExecutionContext) (map[string]any, error) {
	if e.approvals == nil {
		return nil, fmt.Errorf("approval: %w", ErrCollaboratorMissing)
	}

	pending, err := e.approvals.Initiate(ctx, execCtx.RunID, execCtx.WorkflowID, step)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate approval: %w", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otelhelper.ApprovalIDKey, pending.ID))

	return map[string]any{
		"approval_id":        pending.ID,
		"status":             string(pending.Status),
		"required_approvals": pending.RequiredApprovals,
		"approver_roles":     pending.ApproverRoles,
		"approvals":          pending.Approvals,
		"initiated":          pending.Initiated.Format(time.RFC3339Nano),
	}, nil
}

func (e *Executor) timestamp() string {
	return e.now().Format(time.RFC3339Nano)
}

// ConditionResult reads the branch decision out of a condition step's log.
func ConditionResult(log models.StepExecutionLog) bool {
	result, ok := log.Output["condition_result"].(bool)

	return ok && result
}

// ApprovalID reads the pending approval id out of an approval step's log.
func ApprovalID(log models.StepExecutionLog) string {
	id, _ := log.Output["approval_id"].(string)

	return id
}
