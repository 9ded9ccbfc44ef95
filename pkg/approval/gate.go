// Package approval implements the approval gate: it tracks the decisions submitted for an
// approval step within a run and resolves the step once enough of them accumulate.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/google/uuid"
)

// ResolutionListener is notified once per approval, right after it resolves.
type ResolutionListener interface {
	OnApprovalResolved(ctx context.Context, approval *models.PendingApproval) error
}

// ResolutionListenerFunc adapts a function to ResolutionListener.
type ResolutionListenerFunc func(ctx context.Context, approval *models.PendingApproval) error

func (f ResolutionListenerFunc) OnApprovalResolved(ctx context.Context, approval *models.PendingApproval) error {
	return f(ctx, approval)
}

// Gate coordinates the votes on pending approvals. Every change goes through the repository's
// atomic Update, so concurrent decisions on the same approval are all counted.
type Gate struct {
	repo      persistence.ApprovalRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time

	mu        sync.RWMutex
	listeners []ResolutionListener
}

// Option configures a Gate.
type Option func(*Gate)

// WithPublisher publishes approval.requested and approval.resolved events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(g *Gate) {
		g.publisher = publisher
	}
}

// WithIDGenerator replaces the approval id generator.
func WithIDGenerator(newID func() string) Option {
	return func(g *Gate) {
		g.newID = newID
	}
}

// WithClock replaces the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate creates a gate storing approvals in repo.
func NewGate(repo persistence.ApprovalRepository, logger *slog.Logger, opts ...Option) *Gate {
	gate := &Gate{
		repo:   repo,
		logger: logger.With("module", "approval_gate"),
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(gate)
	}

	return gate
}

// AddListener registers a listener for resolved approvals.
func (g *Gate) AddListener(listener ResolutionListener) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listeners = append(g.listeners, listener)
}

// Initiate opens a pending approval for an approval step of a run.
func (g *Gate) Initiate(ctx context.Context, runID, workflowID string, step *models.WorkflowStep) (*models.PendingApproval, error) {
	if step == nil || step.Type != models.StepTypeApproval {
		return nil, fmt.Errorf("%w: not an approval step", ErrInvalidStep)
	}

	if step.RequiredApprovals < 1 {
		return nil, fmt.Errorf("%w: step %s requires at least one approval, got %d", ErrInvalidStep, step.ID, step.RequiredApprovals)
	}

	approval := &models.PendingApproval{
		ID:                g.newID(),
		RunID:             runID,
		WorkflowID:        workflowID,
		StepID:            step.ID,
		RequiredApprovals: step.RequiredApprovals,
		ApproverRoles:     slices.Clone(step.ApproverRoles),
		Approvals:         []models.ApprovalRecord{},
		Status:            models.ApprovalStatusPending,
		Initiated:         g.now(),
	}

	err := g.repo.Create(ctx, approval)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval for step %s: %w", step.ID, err)
	}

	g.logger.InfoContext(ctx, "Approval initiated",
		"approval_id", approval.ID,
		"run_id", runID,
		"step_id", step.ID,
		"required_approvals", approval.RequiredApprovals)

	g.publish(ctx, approval.ID, events.ApprovalRequested{
		BaseEvent:         events.NewBaseEvent(events.ApprovalRequestedEvent, workflowID),
		ApprovalID:        approval.ID,
		RunID:             runID,
		StepID:            step.ID,
		RequiredApprovals: approval.RequiredApprovals,
		ApproverRoles:     approval.ApproverRoles,
	})

	return approval, nil
}

// ProcessApproval records the actor's decision and resolves the approval when it is decisive.
// A rejection resolves the approval immediately; approvals resolve it once the approved count
// reaches the required count. Resolved approvals accept no further decisions.
func (g *Gate) ProcessApproval(
	ctx context.Context,
	approvalID string,
	actor *models.Actor,
	action models.ApprovalAction,
	comments string,
) (*models.PendingApproval, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrNotAuthenticated
	}

	var status models.ApprovalStatus

	switch action {
	case models.ApprovalActionApprove:
		status = models.ApprovalStatusApproved
	case models.ApprovalActionReject:
		status = models.ApprovalStatusRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	var resolved bool

	updated, err := g.repo.Update(ctx, approvalID, func(approval *models.PendingApproval) error {
		resolved = false

		if approval.IsResolved() {
			return fmt.Errorf("%w: %s is %s", ErrApprovalResolved, approval.ID, approval.Status)
		}

		if len(approval.ApproverRoles) > 0 && !slices.Contains(approval.ApproverRoles, actor.Role) {
			return fmt.Errorf("%w: %q", ErrApproverNotAllowed, actor.Role)
		}

		if approval.HasVoted(actor.ID) {
			return fmt.Errorf("%w: %s", ErrAlreadyVoted, actor.ID)
		}

		now := g.now()

		approval.Approvals = append(approval.Approvals, models.ApprovalRecord{
			ApproverID:   actor.ID,
			ApproverName: actor.Name,
			ApproverRole: actor.Role,
			Status:       status,
			Timestamp:    now,
			Comments:     comments,
		})

		switch {
		case status == models.ApprovalStatusRejected:
			approval.Status = models.ApprovalStatusRejected
		case approval.ApprovedCount() >= approval.RequiredApprovals:
			approval.Status = models.ApprovalStatusApproved
		default:
			return nil
		}

		approval.Resolved = &now
		resolved = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "Approval decision recorded",
		"approval_id", approvalID,
		"approver_id", actor.ID,
		"action", action,
		"approved", updated.ApprovedCount(),
		"required", updated.RequiredApprovals,
		"status", updated.Status)

	if resolved {
		err = g.resolve(ctx, updated)
		if err != nil {
			return updated, fmt.Errorf("%w: %w", ErrResumeFailed, err)
		}
	}

	return updated, nil
}

// CancelApproval closes a pending approval so it accepts no further decisions. Listeners are not
// notified. Approvals that already resolved are left as they are.
func (g *Gate) CancelApproval(ctx context.Context, approvalID, reason string) error {
	var cancelled bool

	updated, err := g.repo.Update(ctx, approvalID, func(approval *models.PendingApproval) error {
		cancelled = false

		if approval.IsResolved() {
			return nil
		}

		now := g.now()
		approval.Status = models.ApprovalStatusCancelled
		approval.Resolved = &now
		cancelled = true

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cancel approval %s: %w", approvalID, err)
	}

	if !cancelled {
		return nil
	}

	g.logger.InfoContext(ctx, "Approval cancelled", "approval_id", approvalID, "run_id", updated.RunID, "reason", reason)

	g.publish(ctx, updated.ID, events.ApprovalResolved{
		BaseEvent:  events.NewBaseEvent(events.ApprovalResolvedEvent, updated.WorkflowID),
		ApprovalID: updated.ID,
		RunID:      updated.RunID,
		StepID:     updated.StepID,
		Status:     updated.Status,
	})

	return nil
}

// Get returns an approval by id.
func (g *Gate) Get(ctx context.Context, approvalID string) (*models.PendingApproval, error) {
	return g.repo.GetByID(ctx, approvalID)
}

// ListByRun returns the approvals opened by a run.
func (g *Gate) ListByRun(ctx context.Context, runID string) ([]*models.PendingApproval, error) {
	return g.repo.ListByRun(ctx, runID)
}

func (g *Gate) resolve(ctx context.Context, approval *models.PendingApproval) error {
	g.publish(ctx, approval.ID, events.ApprovalResolved{
		BaseEvent:  events.NewBaseEvent(events.ApprovalResolvedEvent, approval.WorkflowID),
		ApprovalID: approval.ID,
		RunID:      approval.RunID,
		StepID:     approval.StepID,
		Status:     approval.Status,
	})

	g.mu.RLock()
	listeners := slices.Clone(g.listeners)
	g.mu.RUnlock()

	var errs []error

	for _, listener := range listeners {
		err := listener.OnApprovalResolved(ctx, approval)
		if err != nil {
			g.logger.ErrorContext(ctx, "Approval listener failed",
				"approval_id", approval.ID,
				"run_id", approval.RunID,
				"error", err)

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (g *Gate) publish(ctx context.Context, key string, event eventbus.Event) {
	if g.publisher == nil {
		return
	}

	err := g.publisher.Publish(ctx, key, event)
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to publish approval event", "type", event.GetType(), "error", err)
	}
}
