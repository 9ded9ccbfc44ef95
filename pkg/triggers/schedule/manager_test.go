package schedule_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/testutil"
	"github.com/dukex/stepflow/pkg/triggers/schedule"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStarter struct {
	mu      sync.Mutex
	started []string
	data    []map[string]any
}

func (s *recordingStarter) Start(_ context.Context, wf *models.Workflow, opts workflow.StartOptions) (*models.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = append(s.started, wf.ID)
	s.data = append(s.data, opts.TriggerData)

	return &models.WorkflowRun{Log: models.WorkflowExecutionLog{ID: "run-1", WorkflowID: wf.ID, Status: models.ExecutionStatusCompleted}}, nil
}

func scheduledWorkflow(id, cronExpr, timezone string, status models.WorkflowStatus) *models.Workflow {
	trigger := testutil.CreateTestStep(models.StepTypeTrigger, testutil.WithID("t-"+id), func(s *models.WorkflowStep) {
		s.TriggerType = models.TriggerTypeSchedule
		s.Config = map[string]any{"cron": cronExpr, "timezone": timezone}
	})

	wf := testutil.CreateTestWorkflow(trigger, testutil.NotifyAction("n-"+id))
	wf.ID = id
	wf.Status = status

	return wf
}

func TestManager_Sync(t *testing.T) {
	ctx := context.Background()
	repo := file.NewWorkflowRepository(t.TempDir())

	require.NoError(t, repo.Save(ctx, scheduledWorkflow("weekly", "0 9 * * 1", "", models.WorkflowStatusActive)))
	require.NoError(t, repo.Save(ctx, scheduledWorkflow("zoned", "0 8 1 * *", "America/Chicago", models.WorkflowStatusActive)))
	require.NoError(t, repo.Save(ctx, scheduledWorkflow("draft", "0 9 * * 1", "", models.WorkflowStatusDraft)))
	require.NoError(t, repo.Save(ctx, scheduledWorkflow("broken", "whenever", "", models.WorkflowStatusActive)))

	manual := testutil.CreateTestWorkflow(testutil.Trigger("t-manual"))
	manual.ID = "manual"
	require.NoError(t, repo.Save(ctx, manual))

	manager := schedule.NewManager(repo, &recordingStarter{}, slog.Default())

	require.NoError(t, manager.Sync(ctx))
	assert.Equal(t, map[string]string{
		"weekly": "0 9 * * 1",
		"zoned":  "CRON_TZ=America/Chicago 0 8 1 * *",
	}, manager.Scheduled())

	changed := scheduledWorkflow("weekly", "30 9 * * 1", "", models.WorkflowStatusActive)
	require.NoError(t, repo.Save(ctx, changed))
	require.NoError(t, repo.Delete(ctx, "zoned"))

	require.NoError(t, manager.Sync(ctx))
	assert.Equal(t, map[string]string{"weekly": "30 9 * * 1"}, manager.Scheduled())
}

func TestManager_Fire(t *testing.T) {
	ctx := context.Background()
	repo := file.NewWorkflowRepository(t.TempDir())
	starter := &recordingStarter{}
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	manager := schedule.NewManager(repo, starter, slog.Default(), schedule.WithClock(func() time.Time { return fixed }))

	require.NoError(t, repo.Save(ctx, scheduledWorkflow("weekly", "0 9 * * 1", "", models.WorkflowStatusActive)))
	require.NoError(t, repo.Save(ctx, scheduledWorkflow("paused", "0 9 * * 1", "", models.WorkflowStatusInactive)))

	manager.Fire(ctx, "weekly")
	manager.Fire(ctx, "paused")
	manager.Fire(ctx, "missing")

	require.Equal(t, []string{"weekly"}, starter.started)
	assert.Equal(t, map[string]any{
		"trigger_type":    models.TriggerTypeSchedule,
		"fired_at":        "2026-03-02T09:00:00Z",
		"trigger_step_id": "t-weekly",
	}, starter.data[0])
}

func TestManager_StartStop(t *testing.T) {
	ctx := context.Background()
	repo := file.NewWorkflowRepository(t.TempDir())
	require.NoError(t, repo.Save(ctx, scheduledWorkflow("weekly", "0 9 * * 1", "", models.WorkflowStatusActive)))

	manager := schedule.NewManager(repo, &recordingStarter{}, slog.Default(), schedule.WithSyncInterval(time.Hour))

	require.NoError(t, manager.Start(ctx))
	assert.Len(t, manager.Scheduled(), 1)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	require.NoError(t, manager.Stop(stopCtx))
}
