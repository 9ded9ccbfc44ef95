package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/persistence/postgresql"
	"github.com/dukex/stepflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL. A non-empty approvalStoreURL moves
// approval records to Redis while workflows and runs stay in the main store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, approvalStoreURL string) (persistence.Persistence, error) {
	var (
		store persistence.Persistence
		err   error
	)

	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err = postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}
	default:
		store = file.NewPersistence(databaseURL)
	}

	if approvalStoreURL == "" {
		return store, nil
	}

	if !strings.HasPrefix(approvalStoreURL, "redis://") && !strings.HasPrefix(approvalStoreURL, "rediss://") {
		_ = store.Close(ctx)

		return nil, fmt.Errorf("unsupported approval store %q, expected redis:// or rediss://", approvalStoreURL)
	}

	approvals, err := redis.NewApprovalRepositoryFromURL(ctx, logger, approvalStoreURL)
	if err != nil {
		_ = store.Close(ctx)

		return nil, fmt.Errorf("failed to open redis approval store: %w", err)
	}

	return &splitPersistence{Persistence: store, approvals: approvals}, nil
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// splitPersistence keeps approvals in a separate store.
type splitPersistence struct {
	persistence.Persistence

	approvals *redis.ApprovalRepository
}

func (s *splitPersistence) ApprovalRepository() persistence.ApprovalRepository {
	return s.approvals
}

func (s *splitPersistence) HealthCheck(ctx context.Context) error {
	return errors.Join(s.Persistence.HealthCheck(ctx), s.approvals.Ping(ctx))
}

func (s *splitPersistence) Close(ctx context.Context) error {
	return errors.Join(s.approvals.Close(), s.Persistence.Close(ctx))
}
