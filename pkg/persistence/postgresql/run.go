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
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Save upserts the run state.
func (r *RunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	state, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID(), err)
	}

	query := `
		INSERT INTO workflow_runs (id, workflow_id, status, awaiting_approval, started_at, completed_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			awaiting_approval = EXCLUDED.awaiting_approval,
			completed_at = EXCLUDED.completed_at,
			state = EXCLUDED.state
	`

	_, err = r.db.ExecContext(ctx, query,
		run.Log.ID,
		run.Log.WorkflowID,
		run.Log.Status,
		run.Log.AwaitingApproval,
		run.Log.Started,
		run.Log.Completed,
		state,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID(), err)
	}

	return nil
}

// GetByID returns a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	var state []byte

	err := r.db.QueryRowContext(ctx, `SELECT state FROM workflow_runs WHERE id = $1`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}

	var run models.WorkflowRun

	err = json.Unmarshal(state, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

// ListByWorkflow returns the runs of a workflow, newest first.
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	return r.list(ctx, `SELECT state FROM workflow_runs WHERE workflow_id = $1 ORDER BY started_at DESC`, workflowID)
}

// ListByStatus returns the runs with the given status, newest first.
func (r *RunRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.WorkflowRun, error) {
	return r.list(ctx, `SELECT state FROM workflow_runs WHERE status = $1 ORDER BY started_at DESC`, status)
}

func (r *RunRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		var state []byte

		err := rows.Scan(&state)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		var run models.WorkflowRun

		err = json.Unmarshal(state, &run)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}

		runs = append(runs, &run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
