package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/stepflow/pkg/approval"
	"github.com/dukex/stepflow/pkg/models"
)

// Approval exposes the approval gate to approvers.
type Approval struct {
	gate   *approval.Gate
	logger *slog.Logger
}

func NewApproval(gate *approval.Gate, logger *slog.Logger) *Approval {
	return &Approval{
		gate:   gate,
		logger: logger.With("module", "approval_service"),
	}
}

// DecisionRequest is an approver's decision on a pending approval.
type DecisionRequest struct {
	Action   models.ApprovalAction `json:"action"   validate:"required,oneof=approve reject"`
	Comments string                `json:"comments"`
}

// Decide records the actor's decision. When it resolves the approval the suspended run
// resumes before Decide returns. A decision that was recorded but whose run could not be
// resumed returns the approval together with approval.ErrResumeFailed.
func (a *Approval) Decide(ctx context.Context, approvalID string, actor *models.Actor, req DecisionRequest) (*models.PendingApproval, error) {
	pending, err := a.gate.ProcessApproval(ctx, approvalID, actor, req.Action, req.Comments)
	if errors.Is(err, approval.ErrResumeFailed) {
		a.logger.ErrorContext(ctx, "Approval decision recorded but run was not resumed",
			"approval_id", approvalID,
			"run_id", pending.RunID,
			"error", err)

		return pending, err
	}

	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Approval decision recorded",
		"approval_id", approvalID,
		"approver_id", actor.ID,
		"action", req.Action,
		"status", pending.Status)

	return pending, nil
}

func (a *Approval) Get(ctx context.Context, approvalID string) (*models.PendingApproval, error) {
	return a.gate.Get(ctx, approvalID)
}

func (a *Approval) ListByRun(ctx context.Context, runID string) ([]*models.PendingApproval, error) {
	return a.gate.ListByRun(ctx, runID)
}
