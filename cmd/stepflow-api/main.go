package main

import (
	"context"
	"os"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/notify"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "stepflow-api",
		Usage:                 "Author workflows, start runs and decide approvals",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "approval-store",
				Usage:   "Redis URL for approval records (defaults to the main database)",
				Sources: cli.EnvVars("APPROVAL_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka); empty logs side effects instead",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:    "deliver",
				Usage:   "Deliver side-effect requests from the event bus in this process",
				Sources: cli.EnvVars("DELIVER_IN_PROCESS"),
			},
			&cli.StringFlag{
				Name:    "failure-policy",
				Usage:   "Default failure policy for runs (halt, continue)",
				Value:   "halt",
				Sources: cli.EnvVars("FAILURE_POLICY"),
			},
			&cli.BoolFlag{
				Name:    "otel-export",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_EXPORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Stepflow API")

			failurePolicy, err := workflow.ParseFailurePolicy(command.String("failure-policy"))
			if err != nil {
				return err
			}

			tracer, shutdown, err := otelhelper.NewTracer(ctx, "stepflow-api", command.Bool("otel-export"))
			if err != nil {
				return err
			}

			defer func() {
				err := shutdown(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("approval-store"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			var eventBus eventbus.EventBus

			if provider := command.String("event-bus"); provider != "" {
				eventBus, err = cmd.NewEventBus(provider, "stepflow-api", logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				if command.Bool("deliver") {
					dispatcher := notify.NewDispatcher(notify.NewLog(logger), logger)

					err = dispatcher.Register(eventBus)
					if err != nil {
						return err
					}

					err = eventBus.Subscribe(ctx)
					if err != nil {
						return err
					}
				}
			}

			engine := cmd.NewEngine(logger, persistence, eventBus, tracer, failurePolicy)

			api := NewAPI(
				logger,
				persistence,
				registry.NewDefaultRegistry(logger),
				engine,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
