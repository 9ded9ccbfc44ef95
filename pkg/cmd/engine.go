// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/stepflow/pkg/approval"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/executor"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/notify"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the wired run machinery shared by the commands.
type Engine struct {
	Gate        *approval.Gate
	Executor    *executor.Executor
	Coordinator *workflow.Coordinator
}

// NewEngine wires the approval gate, the step executor and the run coordinator. Collaborator
// requests go out as events on the bus, or to the log when there is no bus.
func NewEngine(
	logger *slog.Logger,
	store persistence.Persistence,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	failurePolicy models.FailurePolicy,
) *Engine {
	var (
		notifier notify.Notifier
		emails   notify.EmailSender
		tasks    notify.TaskCreator
	)

	gateOpts := []approval.Option{}
	coordinatorOpts := []workflow.Option{
		workflow.WithTracer(tracer),
		workflow.WithDefaultFailurePolicy(failurePolicy),
	}

	if bus != nil {
		collaborators := notify.NewBus(bus, logger)
		notifier, emails, tasks = collaborators, collaborators, collaborators

		gateOpts = append(gateOpts, approval.WithPublisher(bus))
		coordinatorOpts = append(coordinatorOpts, workflow.WithPublisher(bus))
	} else {
		collaborators := notify.NewLog(logger)
		notifier, emails, tasks = collaborators, collaborators, collaborators
	}

	gate := approval.NewGate(store.ApprovalRepository(), logger, gateOpts...)

	exec := executor.New(logger,
		executor.WithNotifier(notifier),
		executor.WithEmailSender(emails),
		executor.WithTaskCreator(tasks),
		executor.WithApprovalInitiator(gate),
		executor.WithTracer(tracer),
	)

	coordinatorOpts = append(coordinatorOpts, workflow.WithApprovalCanceller(gate))

	coordinator := workflow.NewCoordinator(store.RunRepository(), exec, logger, coordinatorOpts...)
	gate.AddListener(coordinator)

	return &Engine{
		Gate:        gate,
		Executor:    exec,
		Coordinator: coordinator,
	}
}
