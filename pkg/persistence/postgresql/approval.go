package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/lib/pq"
)

const approvalColumns = `
			id
		  , run_id
		  , workflow_id
		  , step_id
		  , required_approvals
		  , approver_roles
		  , approvals
		  , status
		  , initiated_at
		  , resolved_at
		  , version`

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// ApprovalRepository handles approval-related database operations. Update locks the row with
// SELECT ... FOR UPDATE so concurrent votes on the same approval are applied one at a time.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

// Create inserts a new approval.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.PendingApproval) error {
	rolesJSON, approvalsJSON, err := marshalApprovalLists(approval)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approvals (id, run_id, workflow_id, step_id, required_approvals, approver_roles, approvals,
			status, initiated_at, resolved_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		approval.ID,
		approval.RunID,
		approval.WorkflowID,
		approval.StepID,
		approval.RequiredApprovals,
		rolesJSON,
		approvalsJSON,
		approval.Status,
		approval.Initiated,
		approval.Resolved,
		approval.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewApprovalError("Create", approval.ID, persistence.ErrApprovalAlreadyExists)
		}

		return fmt.Errorf("failed to insert approval %s: %w", approval.ID, err)
	}

	return nil
}

// GetByID returns an approval by its ID.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	approval, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval %s: %w", id, err)
	}

	return approval, nil
}

// Update applies mutate to the locked row and commits the result.
func (r *ApprovalRepository) Update(ctx context.Context, id string, mutate persistence.ApprovalMutation) (*models.PendingApproval, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1 FOR UPDATE`

	approval, err := scanApproval(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.NewApprovalError("Update", id, persistence.ErrApprovalNotFound)

			return nil, err
		}

		return nil, fmt.Errorf("failed to lock approval %s: %w", id, err)
	}

	err = mutate(approval)
	if err != nil {
		return nil, err
	}

	approval.Version++

	rolesJSON, approvalsJSON, err := marshalApprovalLists(approval)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE approvals
		SET approver_roles = $2, approvals = $3, status = $4, resolved_at = $5, version = $6
		WHERE id = $1
	`, id, rolesJSON, approvalsJSON, approval.Status, approval.Resolved, approval.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval %s: %w", id, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit approval %s: %w", id, err)
	}

	return approval, nil
}

// ListByRun returns the approvals of a run, oldest first.
func (r *ApprovalRepository) ListByRun(ctx context.Context, runID string) ([]*models.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE run_id = $1 ORDER BY initiated_at ASC`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	approvals := make([]*models.PendingApproval, 0)

	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}

		approvals = append(approvals, approval)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func marshalApprovalLists(approval *models.PendingApproval) ([]byte, []byte, error) {
	roles := approval.ApproverRoles
	if roles == nil {
		roles = []string{}
	}

	records := approval.Approvals
	if records == nil {
		records = []models.ApprovalRecord{}
	}

	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal approver roles: %w", err)
	}

	approvalsJSON, err := json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal approvals: %w", err)
	}

	return rolesJSON, approvalsJSON, nil
}

func scanApproval(row scanner) (*models.PendingApproval, error) {
	var (
		approval                 models.PendingApproval
		rolesJSON, approvalsJSON []byte
		resolved                 sql.NullTime
	)

	err := row.Scan(
		&approval.ID,
		&approval.RunID,
		&approval.WorkflowID,
		&approval.StepID,
		&approval.RequiredApprovals,
		&rolesJSON,
		&approvalsJSON,
		&approval.Status,
		&approval.Initiated,
		&resolved,
		&approval.Version,
	)
	if err != nil {
		return nil, err
	}

	if resolved.Valid {
		approval.Resolved = &resolved.Time
	}

	err = json.Unmarshal(rolesJSON, &approval.ApproverRoles)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal approver roles: %w", err)
	}

	err = json.Unmarshal(approvalsJSON, &approval.Approvals)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal approvals: %w", err)
	}

	return &approval, nil
}
