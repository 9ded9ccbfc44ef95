// Package redis provides a Redis-backed approval repository. Votes are applied with
// WATCH/MULTI optimistic transactions so multiple API instances can share one approval store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "stepflow"
	defaultMaxRetries = 50
)

// ApprovalRepository stores pending approvals as JSON documents with a per-run sorted index.
type ApprovalRepository struct {
	client     redis.UniversalClient
	logger     *slog.Logger
	prefix     string
	maxRetries int
}

// Option configures an ApprovalRepository.
type Option func(*ApprovalRepository)

// WithKeyPrefix namespaces every key written by the repository.
func WithKeyPrefix(prefix string) Option {
	return func(r *ApprovalRepository) {
		r.prefix = prefix
	}
}

// WithMaxRetries bounds how often Update retries after losing an optimistic race.
func WithMaxRetries(n int) Option {
	return func(r *ApprovalRepository) {
		r.maxRetries = n
	}
}

// NewApprovalRepository creates a repository on top of an existing client.
func NewApprovalRepository(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *ApprovalRepository {
	repo := &ApprovalRepository{
		client:     client,
		logger:     logger.With("module", "redis_approvals"),
		prefix:     defaultKeyPrefix,
		maxRetries: defaultMaxRetries,
	}

	for _, opt := range opts {
		opt(repo)
	}

	return repo
}

// NewApprovalRepositoryFromURL parses a redis:// URL and connects.
func NewApprovalRepositoryFromURL(ctx context.Context, logger *slog.Logger, url string, opts ...Option) (*ApprovalRepository, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewApprovalRepository(client, logger, opts...), nil
}

// Ping checks the connection.
func (r *ApprovalRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *ApprovalRepository) Close() error {
	return r.client.Close()
}

func (r *ApprovalRepository) approvalKey(id string) string {
	return r.prefix + ":approval:" + id
}

func (r *ApprovalRepository) runIndexKey(runID string) string {
	return r.prefix + ":run_approvals:" + runID
}

// Create stores a new approval and indexes it under its run.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.PendingApproval) error {
	data, err := json.Marshal(approval)
	if err != nil {
		return fmt.Errorf("failed to marshal approval %s: %w", approval.ID, err)
	}

	created, err := r.client.SetNX(ctx, r.approvalKey(approval.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store approval %s: %w", approval.ID, err)
	}

	if !created {
		return persistence.NewApprovalError("Create", approval.ID, persistence.ErrApprovalAlreadyExists)
	}

	err = r.client.ZAdd(ctx, r.runIndexKey(approval.RunID), redis.Z{
		Score:  float64(approval.Initiated.UnixNano()),
		Member: approval.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index approval %s: %w", approval.ID, err)
	}

	return nil
}

// GetByID reads an approval.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.PendingApproval, error) {
	return r.read(ctx, r.client, id)
}

// Update runs mutate inside a WATCH/MULTI transaction and retries when another writer got in first.
func (r *ApprovalRepository) Update(ctx context.Context, id string, mutate persistence.ApprovalMutation) (*models.PendingApproval, error) {
	key := r.approvalKey(id)

	var updated *models.PendingApproval

	txf := func(tx *redis.Tx) error {
		approval, err := r.read(ctx, tx, id)
		if err != nil {
			return err
		}

		err = mutate(approval)
		if err != nil {
			return err
		}

		approval.Version++

		data, err := json.Marshal(approval)
		if err != nil {
			return fmt.Errorf("failed to marshal approval %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			return nil
		})
		if err != nil {
			return err
		}

		updated = approval

		return nil
	}

	for attempt := range r.maxRetries {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}

		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}

		r.logger.DebugContext(ctx, "approval changed during update, retrying", "approval_id", id, "attempt", attempt+1)
	}

	return nil, persistence.NewApprovalError("Update", id, persistence.ErrApprovalConflict)
}

// ListByRun returns the approvals of a run, oldest first.
func (r *ApprovalRepository) ListByRun(ctx context.Context, runID string) ([]*models.PendingApproval, error) {
	ids, err := r.client.ZRange(ctx, r.runIndexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals of run %s: %w", runID, err)
	}

	approvals := make([]*models.PendingApproval, 0, len(ids))

	for _, id := range ids {
		approval, err := r.read(ctx, r.client, id)
		if err != nil {
			if persistence.IsApprovalNotFound(err) {
				continue
			}

			return nil, err
		}

		approvals = append(approvals, approval)
	}

	return approvals, nil
}

func (r *ApprovalRepository) read(ctx context.Context, cmd redis.Cmdable, id string) (*models.PendingApproval, error) {
	data, err := cmd.Get(ctx, r.approvalKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, fmt.Errorf("failed to read approval %s: %w", id, err)
	}

	var approval models.PendingApproval

	err = json.Unmarshal(data, &approval)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval %s: %w", id, err)
	}

	return &approval, nil
}
