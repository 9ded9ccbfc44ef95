// Package workflow walks workflow runs: it executes steps in order, splices condition branches
// into the walk, suspends at approval steps and records everything on the run's execution log.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/executor"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// StepExecutor runs one step and always returns its log.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step *models.WorkflowStep, execCtx models.ExecutionContext) models.StepExecutionLog
}

// StartOptions are the per-run settings given when a run starts.
type StartOptions struct {
	// RunID overrides the generated run id.
	RunID string
	// TriggerData is the payload of the event that fired the run.
	TriggerData map[string]any
	// FailurePolicy decides what happens after a failed step. Empty means the coordinator default.
	FailurePolicy models.FailurePolicy
	// AllowDraft permits test runs of draft workflows.
	AllowDraft bool
}

// ApprovalCanceller closes the pending approval of a cancelled run.
type ApprovalCanceller interface {
	CancelApproval(ctx context.Context, approvalID, reason string) error
}

// Coordinator drives workflow runs. Runs are persisted after every state change, so a run
// suspended at an approval can be resumed by any coordinator sharing the run repository.
type Coordinator struct {
	runs          persistence.RunRepository
	executor      StepExecutor
	publisher     eventbus.EventPublisher
	approvals     ApprovalCanceller
	tracer        trace.Tracer
	logger        *slog.Logger
	newID         func() string
	now           func() time.Time
	defaultPolicy models.FailurePolicy
	locks         *runLocks
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher publishes run and step events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Coordinator) { c.publisher = publisher }
}

// WithApprovalCanceller closes a cancelled run's pending approval so it takes no more votes.
func WithApprovalCanceller(approvals ApprovalCanceller) Option {
	return func(c *Coordinator) { c.approvals = approvals }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = tracer }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithDefaultFailurePolicy sets the policy used by runs started without one.
func WithDefaultFailurePolicy(policy models.FailurePolicy) Option {
	return func(c *Coordinator) { c.defaultPolicy = policy }
}

// NewCoordinator creates a coordinator persisting runs in runs and executing steps with exec.
func NewCoordinator(runs persistence.RunRepository, exec StepExecutor, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		runs:          runs,
		executor:      exec,
		tracer:        noop.NewTracerProvider().Tracer("stepflow"),
		logger:        logger.With("module", "run_coordinator"),
		newID:         uuid.NewString,
		now:           func() time.Time { return time.Now().UTC() },
		defaultPolicy: models.FailurePolicyHalt,
		locks:         newRunLocks(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ParseFailurePolicy validates a failure policy name. Empty selects halt.
func ParseFailurePolicy(name string) (models.FailurePolicy, error) {
	switch models.FailurePolicy(name) {
	case "", models.FailurePolicyHalt:
		return models.FailurePolicyHalt, nil
	case models.FailurePolicyContinue:
		return models.FailurePolicyContinue, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFailurePolicy, name)
	}
}

// Start snapshots the workflow's steps and walks them until the run finishes or suspends.
// Later edits of the workflow never affect the run.
func (c *Coordinator) Start(ctx context.Context, workflow *models.Workflow, opts StartOptions) (*models.WorkflowRun, error) {
	switch {
	case workflow == nil:
		return nil, fmt.Errorf("%w: workflow is nil", ErrWorkflowNotActive)
	case workflow.Status == models.WorkflowStatusDraft && opts.AllowDraft:
	case !workflow.IsRunnable():
		return nil, fmt.Errorf("%w: %s is %s", ErrWorkflowNotActive, workflow.ID, workflow.Status)
	}

	policy := opts.FailurePolicy
	if policy == "" {
		policy = c.defaultPolicy
	}

	policy, err := ParseFailurePolicy(string(policy))
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = c.newID()
	}

	run := &models.WorkflowRun{
		Log: models.WorkflowExecutionLog{
			ID:         runID,
			WorkflowID: workflow.ID,
			Started:    c.now(),
			Status:     models.ExecutionStatusRunning,
			StepLogs:   []models.StepExecutionLog{},
		},
		WorkflowName:  workflow.Name,
		Steps:         models.CloneSteps(workflow.Steps),
		Cursor:        []models.RunFrame{{Index: 0}},
		FailurePolicy: policy,
		TriggerData:   maps.Clone(opts.TriggerData),
		Variables:     maps.Clone(workflow.Variables),
	}

	unlock := c.locks.lock(runID)
	defer unlock()

	err = c.runs.Save(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to save run %s: %w", runID, err)
	}

	c.logger.InfoContext(ctx, "Run started",
		"run_id", runID,
		"workflow_id", workflow.ID,
		"failure_policy", policy,
		"steps", len(run.Steps))

	c.publish(ctx, runID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, workflow.ID),
		RunID:       runID,
		TriggerData: run.TriggerData,
	})

	err = c.walk(ctx, run)
	if err != nil {
		return run, err
	}

	return run, nil
}

// Resume continues a run suspended at an approval step. An approved decision continues with
// the step after the approval; a rejected decision fails the run.
func (c *Coordinator) Resume(ctx context.Context, runID string, decision models.ApprovalStatus) (*models.WorkflowRun, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	run, err := c.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	return run, c.resume(ctx, run, decision)
}

// OnApprovalResolved resumes the run waiting on the resolved approval. Resolutions of
// approvals the run is no longer waiting on are ignored.
func (c *Coordinator) OnApprovalResolved(ctx context.Context, approval *models.PendingApproval) error {
	_, err := c.ResumeAfter(ctx, approval)
	if errors.Is(err, ErrRunFinished) || errors.Is(err, ErrRunNotAwaitingApproval) {
		c.logger.WarnContext(ctx, "Ignoring resolution of approval the run is not waiting on",
			"run_id", approval.RunID,
			"approval_id", approval.ID)

		return nil
	}

	return err
}

// ResumeAfter continues the run suspended at the given resolved approval with its decision.
// It fails when the run is not waiting on that approval, which makes it safe to retry after
// an earlier resume attempt did not go through.
func (c *Coordinator) ResumeAfter(ctx context.Context, approval *models.PendingApproval) (*models.WorkflowRun, error) {
	unlock := c.locks.lock(approval.RunID)
	defer unlock()

	run, err := c.runs.GetByID(ctx, approval.RunID)
	if err != nil {
		return nil, err
	}

	if !run.Log.IsTerminal() && run.Log.AwaitingApproval && run.Log.PendingApprovalID != approval.ID {
		return run, fmt.Errorf("%w: %s waits on %s, not %s",
			ErrRunNotAwaitingApproval, run.ID(), run.Log.PendingApprovalID, approval.ID)
	}

	return run, c.resume(ctx, run, approval.Status)
}

func (c *Coordinator) resume(ctx context.Context, run *models.WorkflowRun, decision models.ApprovalStatus) error {
	if run.Log.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, run.ID(), run.Log.Status)
	}

	if !run.Log.AwaitingApproval {
		return fmt.Errorf("%w: %s", ErrRunNotAwaitingApproval, run.ID())
	}

	logger := c.logger.With("run_id", run.ID(), "approval_id", run.Log.PendingApprovalID)

	switch decision {
	case models.ApprovalStatusApproved:
		logger.InfoContext(ctx, "Approval granted, resuming run")

		run.Log.AwaitingApproval = false
		run.Log.PendingApprovalID = ""

		return c.walk(ctx, run)

	case models.ApprovalStatusRejected:
		logger.InfoContext(ctx, "Approval rejected, failing run")

		return c.finish(ctx, run, models.ExecutionStatusFailed,
			fmt.Sprintf("approval %s rejected", run.Log.PendingApprovalID))

	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
}

// Cancel fails a run that has not finished yet, recording the reason.
func (c *Coordinator) Cancel(ctx context.Context, runID, reason string) (*models.WorkflowRun, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	run, err := c.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Log.IsTerminal() {
		return run, fmt.Errorf("%w: %s is %s", ErrRunFinished, runID, run.Log.Status)
	}

	message := "cancelled"
	if reason != "" {
		message += ": " + reason
	}

	c.logger.InfoContext(ctx, "Cancelling run", "run_id", runID, "reason", reason)

	pendingApprovalID := ""
	if run.Log.AwaitingApproval {
		pendingApprovalID = run.Log.PendingApprovalID
	}

	err = c.finish(ctx, run, models.ExecutionStatusFailed, message)
	if err != nil {
		return run, err
	}

	if pendingApprovalID != "" && c.approvals != nil {
		err = c.approvals.CancelApproval(ctx, pendingApprovalID, message)
		if err != nil {
			// the run is terminal, so a late resolution is ignored anyway
			c.logger.ErrorContext(ctx, "Failed to cancel pending approval",
				"run_id", runID,
				"approval_id", pendingApprovalID,
				"error", err)
		}
	}

	return run, nil
}

// Run returns a run by id.
func (c *Coordinator) Run(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return c.runs.GetByID(ctx, runID)
}

// RunsByWorkflow returns the runs of a workflow, newest first.
func (c *Coordinator) RunsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	return c.runs.ListByWorkflow(ctx, workflowID)
}

// walk executes steps from the run's cursor until the run finishes or suspends at an approval.
// The cursor is a stack of frames, one per step list being walked; a condition pushes the frame
// of its chosen branch, and the parent list resumes once the branch frame is exhausted.
func (c *Coordinator) walk(ctx context.Context, run *models.WorkflowRun) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "run.walk",
		attribute.String(otelhelper.RunIDKey, run.ID()),
		attribute.String(otelhelper.WorkflowIDKey, run.Log.WorkflowID),
		attribute.String(otelhelper.WorkflowNameKey, run.WorkflowName),
	)
	defer span.End()

	logger := c.logger.With("run_id", run.ID(), "workflow_id", run.Log.WorkflowID)

	execCtx := models.ExecutionContext{
		RunID:        run.ID(),
		WorkflowID:   run.Log.WorkflowID,
		WorkflowName: run.WorkflowName,
		TriggerData:  run.TriggerData,
		Variables:    run.Variables,
	}

	for len(run.Cursor) > 0 {
		top := len(run.Cursor) - 1

		steps, err := resolveSteps(run.Steps, run.Cursor[top].Path)
		if err != nil {
			otelhelper.SetError(span, err)

			return c.finish(ctx, run, models.ExecutionStatusFailed, err.Error())
		}

		if run.Cursor[top].Index >= len(steps) {
			run.Cursor = run.Cursor[:top]

			continue
		}

		step := steps[run.Cursor[top].Index]
		run.Cursor[top].Index++

		stepLog := c.executor.ExecuteStep(ctx, step, execCtx)
		run.Log.StepLogs = append(run.Log.StepLogs, stepLog)

		c.publish(ctx, run.ID(), events.StepExecuted{
			BaseEvent: events.NewBaseEvent(events.StepExecutedEvent, run.Log.WorkflowID),
			RunID:     run.ID(),
			StepID:    step.ID,
			StepType:  step.Type,
			Status:    stepLog.Status,
			Error:     stepLog.Error,
		})

		if stepLog.Failed() {
			logger.WarnContext(ctx, "Step failed", "step_id", step.ID, "error", stepLog.Error)

			// A failed approval step never lets the run past its gate.
			if run.FailurePolicy != models.FailurePolicyContinue || step.Type == models.StepTypeApproval {
				return c.finish(ctx, run, models.ExecutionStatusFailed,
					fmt.Sprintf("step %s failed: %s", step.ID, stepLog.Error))
			}

			continue
		}

		switch step.Type {
		case models.StepTypeCondition:
			branch := models.BranchFalse
			if executor.ConditionResult(stepLog) {
				branch = models.BranchTrue
			}

			path := append(slices.Clone(run.Cursor[top].Path), models.BranchRef{StepID: step.ID, Branch: branch})
			run.Cursor = append(run.Cursor, models.RunFrame{Path: path, Index: 0})

			logger.DebugContext(ctx, "Entering branch", "step_id", step.ID, "branch", branch)

		case models.StepTypeApproval:
			return c.suspend(ctx, run, step, executor.ApprovalID(stepLog))
		}
	}

	return c.finish(ctx, run, models.ExecutionStatusCompleted, "")
}

func (c *Coordinator) suspend(ctx context.Context, run *models.WorkflowRun, step *models.WorkflowStep, approvalID string) error {
	run.Log.AwaitingApproval = true
	run.Log.PendingApprovalID = approvalID

	err := c.runs.Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID(), err)
	}

	c.logger.InfoContext(ctx, "Run awaiting approval",
		"run_id", run.ID(),
		"step_id", step.ID,
		"approval_id", approvalID)

	c.publish(ctx, run.ID(), events.RunAwaitingApproval{
		BaseEvent:  events.NewBaseEvent(events.RunAwaitingApprovalEvent, run.Log.WorkflowID),
		RunID:      run.ID(),
		StepID:     step.ID,
		ApprovalID: approvalID,
	})

	return nil
}

func (c *Coordinator) finish(ctx context.Context, run *models.WorkflowRun, status models.ExecutionStatus, message string) error {
	completed := c.now()

	run.Log.Status = status
	run.Log.Completed = &completed
	run.Log.AwaitingApproval = false
	run.Log.Error = message
	run.Cursor = nil

	err := c.runs.Save(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID(), err)
	}

	duration := completed.Sub(run.Log.Started)

	if status == models.ExecutionStatusCompleted {
		c.logger.InfoContext(ctx, "Run completed", "run_id", run.ID(), "steps", len(run.Log.StepLogs), "duration", duration)

		c.publish(ctx, run.ID(), events.RunCompleted{
			BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, run.Log.WorkflowID),
			RunID:     run.ID(),
			Steps:     len(run.Log.StepLogs),
			Duration:  duration,
		})

		return nil
	}

	c.logger.InfoContext(ctx, "Run failed", "run_id", run.ID(), "error", message, "duration", duration)

	c.publish(ctx, run.ID(), events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.Log.WorkflowID),
		RunID:     run.ID(),
		Error:     message,
		Duration:  duration,
	})

	return nil
}

func (c *Coordinator) publish(ctx context.Context, key string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, key, event)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish run event", "type", event.GetType(), "error", err)
	}
}

// resolveSteps returns the step list a cursor path points at.
func resolveSteps(steps []*models.WorkflowStep, path []models.BranchRef) ([]*models.WorkflowStep, error) {
	current := steps

	for _, ref := range path {
		idx := slices.IndexFunc(current, func(s *models.WorkflowStep) bool {
			return s.ID == ref.StepID && s.Type == models.StepTypeCondition
		})
		if idx < 0 {
			return nil, fmt.Errorf("%w: condition %s not found", ErrCorruptCursor, ref.StepID)
		}

		current = current[idx].BranchSteps(ref.Branch)
	}

	return current, nil
}
