package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSweepBatchSize = 500

// ExpirySweepJob deactivates assignment and override rows whose expiry has
// passed. The resolution engine already treats such rows as absent, so the
// sweep changes no decision outcome.
type ExpirySweepJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewExpirySweepJob initialises the expiry sweep handler.
func NewExpirySweepJob(pool *pgxpool.Pool, logger *slog.Logger) *ExpirySweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweepJob{
		Pool:   pool,
		Logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the sweep.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	var payload ExpirySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = defaultSweepBatchSize
	}

	now := j.clock()
	assignments, err := j.sweep(ctx, "user_role_assignments", now, payload.BatchSize)
	if err != nil {
		return fmt.Errorf("expiry sweep: assignments: %w", err)
	}
	overrides, err := j.sweep(ctx, "user_permission_overrides", now, payload.BatchSize)
	if err != nil {
		return fmt.Errorf("expiry sweep: overrides: %w", err)
	}

	j.Logger.Info("expiry sweep completed",
		slog.Int64("assignments", assignments),
		slog.Int64("overrides", overrides))
	return nil
}

func (j *ExpirySweepJob) sweep(ctx context.Context, table string, now time.Time, batch int) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET is_active = FALSE
		WHERE id IN (
			SELECT id FROM %s
			WHERE is_active AND expiry_at IS NOT NULL AND expiry_at <= $1
			LIMIT $2
		)`, table, table)
	tag, err := j.Pool.Exec(ctx, query, now, batch)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
