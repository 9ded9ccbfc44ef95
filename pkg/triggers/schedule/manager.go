// Package schedule starts runs of active workflows whose trigger step is a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/robfig/cron/v3"
)

// RunStarter starts a run of a workflow.
type RunStarter interface {
	Start(ctx context.Context, workflow *models.Workflow, opts workflow.StartOptions) (*models.WorkflowRun, error)
}

type job struct {
	entryID cron.EntryID
	spec    string
}

// Manager keeps one cron entry per scheduled workflow and resyncs them with the repository.
type Manager struct {
	workflows    persistence.WorkflowRepository
	starter      RunStarter
	logger       *slog.Logger
	cron         *cron.Cron
	syncInterval time.Duration
	now          func() time.Time

	mu   sync.Mutex
	jobs map[string]job
}

type Option func(*Manager)

// WithSyncInterval sets how often workflows are reloaded from the repository.
func WithSyncInterval(interval time.Duration) Option {
	return func(m *Manager) { m.syncInterval = interval }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(workflows persistence.WorkflowRepository, starter RunStarter, logger *slog.Logger, opts ...Option) *Manager {
	logger = logger.With("module", "schedule_trigger")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	m := &Manager{
		workflows:    workflows,
		starter:      starter,
		logger:       logger,
		syncInterval: time.Minute,
		now:          time.Now,
		jobs:         make(map[string]job),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start syncs the schedules and starts the cron loop.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting schedule trigger manager", "sync_interval", m.syncInterval)

	err := m.Sync(ctx)
	if err != nil {
		return err
	}

	_, err = m.cron.AddFunc(fmt.Sprintf("@every %s", m.syncInterval), func() {
		syncErr := m.Sync(ctx)
		if syncErr != nil {
			m.logger.ErrorContext(ctx, "Failed to sync schedules", "error", syncErr)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}

	m.cron.Start()

	return nil
}

// Stop stops the cron loop and waits for running jobs until ctx is done.
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Stopping schedule trigger manager")

	select {
	case <-m.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync adds, replaces and removes cron entries so that exactly the active workflows with a
// valid schedule trigger are scheduled.
func (m *Manager) Sync(ctx context.Context) error {
	all, err := m.workflows.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	wanted := make(map[string]string)

	for _, wf := range all {
		spec, ok := scheduleSpec(wf)
		if !ok {
			continue
		}

		wanted[wf.ID] = spec
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, current := range m.jobs {
		spec, ok := wanted[id]
		if ok && spec == current.spec {
			continue
		}

		m.cron.Remove(current.entryID)
		delete(m.jobs, id)
		m.logger.InfoContext(ctx, "Removed schedule", "workflow_id", id, "cron", current.spec)
	}

	for id, spec := range wanted {
		if _, ok := m.jobs[id]; ok {
			continue
		}

		workflowID := id

		entryID, err := m.cron.AddFunc(spec, func() { m.Fire(ctx, workflowID) })
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping invalid schedule", "workflow_id", id, "cron", spec, "error", err)

			continue
		}

		m.jobs[id] = job{entryID: entryID, spec: spec}
		m.logger.InfoContext(ctx, "Added schedule", "workflow_id", id, "cron", spec)
	}

	return nil
}

// Scheduled returns the cron spec of every scheduled workflow keyed by workflow id.
func (m *Manager) Scheduled() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	scheduled := make(map[string]string, len(m.jobs))
	for id, j := range m.jobs {
		scheduled[id] = j.spec
	}

	return scheduled
}

// Fire starts a run of the workflow if it is still active. The workflow is reloaded so that
// the run snapshots its latest steps.
func (m *Manager) Fire(ctx context.Context, workflowID string) {
	wf, err := m.workflows.GetByID(ctx, workflowID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load scheduled workflow", "workflow_id", workflowID, "error", err)

		return
	}

	if !wf.IsRunnable() {
		m.logger.InfoContext(ctx, "Scheduled workflow is no longer active", "workflow_id", workflowID)

		return
	}

	triggerData := map[string]any{
		"trigger_type": models.TriggerTypeSchedule,
		"fired_at":     m.now().UTC().Format(time.RFC3339),
	}

	if trigger := wf.TriggerStep(); trigger != nil {
		triggerData["trigger_step_id"] = trigger.ID
	}

	run, err := m.starter.Start(ctx, wf, workflow.StartOptions{TriggerData: triggerData})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to start scheduled run", "workflow_id", workflowID, "error", err)

		return
	}

	m.logger.InfoContext(ctx, "Scheduled run started", "workflow_id", workflowID, "run_id", run.Log.ID, "status", run.Log.Status)
}

func scheduleSpec(wf *models.Workflow) (string, bool) {
	if !wf.IsRunnable() {
		return "", false
	}

	trigger := wf.TriggerStep()
	if trigger == nil || trigger.TriggerType != models.TriggerTypeSchedule {
		return "", false
	}

	config := models.ScheduleTriggerConfigFrom(trigger.Config)
	if config.Cron == "" {
		return "", false
	}

	if config.Timezone != "" {
		return fmt.Sprintf("CRON_TZ=%s %s", config.Timezone, config.Cron), true
	}

	return config.Cron, true
}
