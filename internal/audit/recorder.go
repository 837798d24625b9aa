package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record describes one administrative state transition to be appended.
// Old and New are serialized as JSON snapshots of the record before and
// after the mutation.
type Record struct {
	SubjectID int64
	Action    Action
	Target    Target
	Old       any
	New       any
	Reason    string
	ActorID   int64
}

// Recorder appends entries to the audit log.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordTx appends an entry within the caller's transaction, so the entry
// commits or rolls back together with the guarded mutation.
func (r *Recorder) RecordTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	entry, args, err := r.prepare(rec)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertEntrySQL, args...); err != nil {
		r.logger.Error("audit append failed",
			slog.String("action", string(entry.Action)),
			slog.String("target_kind", string(entry.Target.Kind)),
			slog.Any("error", err))
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Record appends an entry outside any transaction.
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	entry, args, err := r.prepare(rec)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertEntrySQL, args...); err != nil {
		r.logger.Error("audit append failed",
			slog.String("action", string(entry.Action)),
			slog.String("target_kind", string(entry.Target.Kind)),
			slog.Any("error", err))
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

const insertEntrySQL = `
	INSERT INTO audit_entries (id, subject_user_id, action, target_type, target_id, old_value, new_value, reason, actor_id, action_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (r *Recorder) prepare(rec Record) (Entry, []any, error) {
	if rec.Action == "" {
		return Entry{}, nil, errors.New("audit: action required")
	}
	if rec.Target.Kind == "" || rec.Target.ID == 0 {
		return Entry{}, nil, errors.New("audit: target required")
	}

	oldJSON, err := marshalValue(rec.Old)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("audit: marshal old value: %w", err)
	}
	newJSON, err := marshalValue(rec.New)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("audit: marshal new value: %w", err)
	}

	entry := Entry{
		ID:        uuid.New(),
		SubjectID: rec.SubjectID,
		Action:    rec.Action,
		Target:    rec.Target,
		OldValue:  oldJSON,
		NewValue:  newJSON,
		Reason:    rec.Reason,
		ActorID:   rec.ActorID,
		At:        r.now(),
	}
	args := []any{
		entry.ID, entry.SubjectID, string(entry.Action), string(entry.Target.Kind), entry.Target.ID,
		oldJSON, newJSON, nullableText(entry.Reason), entry.ActorID, entry.At,
	}
	return entry, args, nil
}

func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
