package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultSinceDays = 7
	maxSinceDays     = 90
	defaultPageSize  = 50
	maxPageSize      = 200
)

// QueryFilters bound an audit log read.
type QueryFilters struct {
	SubjectID *int64
	SinceDays int
	Limit     int
}

// Service answers bounded audit log queries.
type Service struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// clamp applies the retention window and page-size caps so no caller can
// trigger an unbounded scan.
func (f QueryFilters) clamp() (sinceDays, limit int) {
	sinceDays = f.SinceDays
	if sinceDays <= 0 {
		sinceDays = defaultSinceDays
	}
	if sinceDays > maxSinceDays {
		sinceDays = maxSinceDays
	}
	limit = f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return sinceDays, limit
}

// Query returns entries newest first, bounded by the clamped filters.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]Entry, error) {
	sinceDays, limit := filters.clamp()
	since := s.now().AddDate(0, 0, -sinceDays)

	query := `
		SELECT id, subject_user_id, action, target_type, target_id, old_value, new_value, COALESCE(reason, ''), actor_id, action_at
		FROM audit_entries
		WHERE action_at >= $1`
	args := []any{since}
	if filters.SubjectID != nil {
		query += ` AND subject_user_id = $2`
		args = append(args, *filters.SubjectID)
	}
	query += fmt.Sprintf(` ORDER BY action_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			id         uuid.UUID
			action     string
			targetType string
		)
		if err := rows.Scan(&id, &e.SubjectID, &action, &targetType, &e.Target.ID, &e.OldValue, &e.NewValue, &e.Reason, &e.ActorID, &e.At); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.ID = id
		e.Action = Action(action)
		e.Target.Kind = TargetKind(targetType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}
