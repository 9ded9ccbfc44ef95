package file

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(id, workflowID string, status models.ExecutionStatus, started time.Time) *models.WorkflowRun {
	return &models.WorkflowRun{
		Log: models.WorkflowExecutionLog{
			ID:         id,
			WorkflowID: workflowID,
			Started:    started,
			Status:     status,
			StepLogs:   []models.StepExecutionLog{},
		},
		Steps:         []*models.WorkflowStep{{ID: "t1", Type: models.StepTypeTrigger}},
		Cursor:        []models.RunFrame{{Index: 1}},
		FailurePolicy: models.FailurePolicyHalt,
	}
}

func TestPersistence_HealthCheck(t *testing.T) {
	root := t.TempDir()

	p := NewPersistence("file://" + root)
	require.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence(root + "/missing")
	assert.Error(t, missing.HealthCheck(context.Background()))
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := NewRunRepository(t.TempDir())
	ctx := context.Background()

	run := newRun("run-1", "wf-1", models.ExecutionStatusRunning, time.Now().UTC())
	run.Log.AwaitingApproval = true
	run.Log.PendingApprovalID = "ap-1"

	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Log.AwaitingApproval)
	assert.Equal(t, "ap-1", got.Log.PendingApprovalID)
	assert.Equal(t, []models.RunFrame{{Index: 1}}, got.Cursor)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunRepository_Listing(t *testing.T) {
	repo := NewRunRepository(t.TempDir())
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, newRun("run-1", "wf-1", models.ExecutionStatusCompleted, base)))
	require.NoError(t, repo.Save(ctx, newRun("run-2", "wf-1", models.ExecutionStatusRunning, base.Add(time.Minute))))
	require.NoError(t, repo.Save(ctx, newRun("run-3", "wf-2", models.ExecutionStatusRunning, base.Add(2*time.Minute))))

	byWorkflow, err := repo.ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	assert.Equal(t, "run-2", byWorkflow[0].ID())

	running, err := repo.ListByStatus(ctx, models.ExecutionStatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 2)
	assert.Equal(t, "run-3", running[0].ID())
}
