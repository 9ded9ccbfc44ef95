package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/approval"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/workflow"
)

// Run starts, inspects and cancels workflow runs.
type Run struct {
	workflows   persistence.WorkflowRepository
	coordinator *workflow.Coordinator
	gate        *approval.Gate
	logger      *slog.Logger
}

func NewRun(workflows persistence.WorkflowRepository, coordinator *workflow.Coordinator, gate *approval.Gate, logger *slog.Logger) *Run {
	return &Run{
		workflows:   workflows,
		coordinator: coordinator,
		gate:        gate,
		logger:      logger.With("module", "run_service"),
	}
}

// StartRunRequest contains the options of a manually started run.
type StartRunRequest struct {
	TriggerData   map[string]any `json:"trigger_data"`
	FailurePolicy string         `json:"failure_policy" validate:"omitempty,oneof=halt continue"`

	// Test runs may start from drafts.
	Test bool `json:"test"`
}

// Start fires the workflow's trigger by hand. The returned run has either finished or is
// suspended at an approval step.
func (r *Run) Start(ctx context.Context, workflowID string, req StartRunRequest) (*models.WorkflowRun, error) {
	wf, err := r.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	opts := workflow.StartOptions{
		TriggerData: req.TriggerData,
		AllowDraft:  req.Test,
	}

	if req.FailurePolicy != "" {
		opts.FailurePolicy, err = workflow.ParseFailurePolicy(req.FailurePolicy)
		if err != nil {
			return nil, err
		}
	}

	run, err := r.coordinator.Start(ctx, wf, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start run of workflow %s: %w", workflowID, err)
	}

	return run, nil
}

// Get returns a run by id.
func (r *Run) Get(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return r.coordinator.Run(ctx, runID)
}

// ListByWorkflow returns the runs of a workflow, newest first.
func (r *Run) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	_, err := r.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return r.coordinator.RunsByWorkflow(ctx, workflowID)
}

// Cancel fails a run that has not finished yet.
func (r *Run) Cancel(ctx context.Context, runID, reason string) (*models.WorkflowRun, error) {
	return r.coordinator.Cancel(ctx, runID, reason)
}

// Resume continues a run whose approval was resolved but which is still suspended because
// the resume that followed the decision did not go through.
func (r *Run) Resume(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	run, err := r.coordinator.Run(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Log.IsTerminal() {
		return run, fmt.Errorf("%w: %s is %s", workflow.ErrRunFinished, runID, run.Log.Status)
	}

	if !run.Log.AwaitingApproval {
		return run, fmt.Errorf("%w: %s", workflow.ErrRunNotAwaitingApproval, runID)
	}

	pending, err := r.gate.Get(ctx, run.Log.PendingApprovalID)
	if err != nil {
		return nil, err
	}

	if pending.Status != models.ApprovalStatusApproved && pending.Status != models.ApprovalStatusRejected {
		return run, fmt.Errorf("%w: %s is %s", ErrApprovalPending, pending.ID, pending.Status)
	}

	r.logger.InfoContext(ctx, "Resuming run after resolved approval",
		"run_id", runID,
		"approval_id", pending.ID,
		"status", pending.Status)

	return r.coordinator.ResumeAfter(ctx, pending)
}
