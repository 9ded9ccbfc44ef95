package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// ApprovalRepository handles approval-related file operations. A single mutex serializes
// every write, which makes Update atomic for all goroutines sharing the repository.
type ApprovalRepository struct {
	dir string
	mu  sync.Mutex
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(root string) *ApprovalRepository {
	return &ApprovalRepository{dir: filepath.Join(root, "approvals")}
}

// Create stores a new approval.
func (ar *ApprovalRepository) Create(_ context.Context, approval *models.PendingApproval) error {
	if err := validateID(approval.ID); err != nil {
		return fmt.Errorf("invalid approval ID: %w", err)
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	if _, err := os.Stat(filepath.Join(ar.dir, approval.ID+".json")); err == nil {
		return persistence.NewApprovalError("Create", approval.ID, persistence.ErrApprovalAlreadyExists)
	}

	return writeJSON(ar.dir, approval.ID, approval)
}

// GetByID reads an approval by its ID.
func (ar *ApprovalRepository) GetByID(_ context.Context, id string) (*models.PendingApproval, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	return ar.read(id)
}

// Update applies mutate to the stored approval and writes the result back.
func (ar *ApprovalRepository) Update(_ context.Context, id string, mutate persistence.ApprovalMutation) (*models.PendingApproval, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	approval, err := ar.read(id)
	if err != nil {
		return nil, err
	}

	err = mutate(approval)
	if err != nil {
		return nil, err
	}

	approval.Version++

	err = writeJSON(ar.dir, id, approval)
	if err != nil {
		return nil, err
	}

	return approval, nil
}

// ListByRun returns the approvals initiated by a run, oldest first.
func (ar *ApprovalRepository) ListByRun(_ context.Context, runID string) ([]*models.PendingApproval, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	ids, err := listIDs(ar.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	approvals := make([]*models.PendingApproval, 0)

	for _, id := range ids {
		approval, err := ar.read(id)
		if err != nil {
			return nil, err
		}

		if approval.RunID == runID {
			approvals = append(approvals, approval)
		}
	}

	sort.SliceStable(approvals, func(i, j int) bool {
		return approvals[i].Initiated.Before(approvals[j].Initiated)
	})

	return approvals, nil
}

func (ar *ApprovalRepository) read(id string) (*models.PendingApproval, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
	}

	var approval models.PendingApproval

	err := readJSON(ar.dir, id, &approval)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, fmt.Errorf("failed to read approval %s: %w", id, err)
	}

	return &approval, nil
}
