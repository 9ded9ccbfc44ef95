package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// RunRepository handles run-related file operations.
type RunRepository struct {
	dir string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{dir: filepath.Join(root, "runs")}
}

// Save writes the run, replacing any previous state.
func (rr *RunRepository) Save(_ context.Context, run *models.WorkflowRun) error {
	if err := validateID(run.ID()); err != nil {
		return fmt.Errorf("invalid run ID: %w", err)
	}

	return writeJSON(rr.dir, run.ID(), run)
}

// GetByID reads a run by its ID.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	var run models.WorkflowRun

	err := readJSON(rr.dir, id, &run)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	return &run, nil
}

// ListByWorkflow returns the runs of a workflow, newest first.
func (rr *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	return rr.list(ctx, func(run *models.WorkflowRun) bool {
		return run.Log.WorkflowID == workflowID
	})
}

// ListByStatus returns the runs with the given status, newest first.
func (rr *RunRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.WorkflowRun, error) {
	return rr.list(ctx, func(run *models.WorkflowRun) bool {
		return run.Log.Status == status
	})
}

func (rr *RunRepository) list(ctx context.Context, keep func(*models.WorkflowRun) bool) ([]*models.WorkflowRun, error) {
	ids, err := listIDs(rr.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*models.WorkflowRun, 0)

	for _, id := range ids {
		run, err := rr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if keep(run) {
			runs = append(runs, run)
		}
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Log.Started.After(runs[j].Log.Started)
	})

	return runs, nil
}
