package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/stepflow/pkg/triggers/schedule"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, manager *schedule.Manager, logger *slog.Logger) error {
	err := manager.Start(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start scheduler", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Scheduler started", "workflows", len(manager.Scheduled()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Shutting down scheduler...")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return manager.Stop(stopCtx)
}
