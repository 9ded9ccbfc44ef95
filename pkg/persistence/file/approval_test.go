package file

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingApproval(id, runID string) *models.PendingApproval {
	return &models.PendingApproval{
		ID:                id,
		RunID:             runID,
		WorkflowID:        "wf-1",
		StepID:            "approval-1",
		RequiredApprovals: 2,
		Approvals:         []models.ApprovalRecord{},
		Status:            models.ApprovalStatusPending,
		Initiated:         time.Now().UTC(),
	}
}

func TestApprovalRepository_CreateAndGet(t *testing.T) {
	repo := NewApprovalRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPendingApproval("ap-1", "run-1")))

	got, err := repo.GetByID(ctx, "ap-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, got.Status)
	assert.Equal(t, 2, got.RequiredApprovals)

	err = repo.Create(ctx, newPendingApproval("ap-1", "run-1"))
	require.ErrorIs(t, err, persistence.ErrApprovalAlreadyExists)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsApprovalNotFound(err))
}

func TestApprovalRepository_UpdateAbortsOnMutationError(t *testing.T) {
	repo := NewApprovalRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPendingApproval("ap-1", "run-1")))

	errBoom := errors.New("boom")
	_, err := repo.Update(ctx, "ap-1", func(approval *models.PendingApproval) error {
		approval.Status = models.ApprovalStatusRejected

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := repo.GetByID(ctx, "ap-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, got.Status)
	assert.Equal(t, int64(0), got.Version)
}

func TestApprovalRepository_ConcurrentUpdates(t *testing.T) {
	repo := NewApprovalRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPendingApproval("ap-1", "run-1")))

	const voters = 20

	var wg sync.WaitGroup

	for i := range voters {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_, err := repo.Update(ctx, "ap-1", func(approval *models.PendingApproval) error {
				approval.Approvals = append(approval.Approvals, models.ApprovalRecord{
					ApproverID: fmt.Sprintf("user-%d", n),
					Status:     models.ApprovalStatusApproved,
					Timestamp:  time.Now().UTC(),
				})

				return nil
			})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	got, err := repo.GetByID(ctx, "ap-1")
	require.NoError(t, err)
	assert.Len(t, got.Approvals, voters)
	assert.Equal(t, int64(voters), got.Version)
}

func TestApprovalRepository_ListByRun(t *testing.T) {
	repo := NewApprovalRepository(t.TempDir())
	ctx := context.Background()

	first := newPendingApproval("ap-1", "run-1")
	second := newPendingApproval("ap-2", "run-1")
	second.Initiated = first.Initiated.Add(time.Minute)

	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, newPendingApproval("ap-3", "run-2")))

	approvals, err := repo.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, "ap-1", approvals[0].ID)
	assert.Equal(t, "ap-2", approvals[1].ID)
}
