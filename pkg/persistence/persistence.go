// Package persistence provides the data storage abstraction layer for workflows, runs and approvals.
package persistence

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	ApprovalRepository() ApprovalRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// RunRepository stores run state and execution logs.
type RunRepository interface {
	Save(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.WorkflowRun, error)
}

// ApprovalMutation changes a pending approval in place. Returning an error aborts the update.
type ApprovalMutation func(approval *models.PendingApproval) error

// ApprovalRepository stores the approval gate's records. Update is an atomic read-modify-write:
// concurrent updates of the same approval are applied one after the other, never on stale data.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *models.PendingApproval) error
	GetByID(ctx context.Context, id string) (*models.PendingApproval, error)
	Update(ctx context.Context, id string, mutate ApprovalMutation) (*models.PendingApproval, error)
	ListByRun(ctx context.Context, runID string) ([]*models.PendingApproval, error)
}

// ListWorkflowsOptions filters, sorts and paginates workflow listings.
type ListWorkflowsOptions struct {
	Limit     int
	Offset    int
	OwnerID   string
	Status    *models.WorkflowStatus
	Category  string
	SortBy    string
	SortOrder string
}

// WorkflowListResult is one page of workflows.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// AllowedSortFields are the fields workflows can be sorted by.
var AllowedSortFields = []string{"created_at", "updated_at", "name"}
