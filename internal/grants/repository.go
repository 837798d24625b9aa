package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/platform/db"
	"github.com/meridianhr/meridian/internal/shared"
)

// Repository provides PostgreSQL backed persistence for assignments and overrides.
type Repository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, recorder *audit.Recorder) *Repository {
	return &Repository{pool: pool, recorder: recorder}
}

// TxRepository exposes transactional grant operations with the audit append
// joining the same transaction.
type TxRepository interface {
	UpsertAssignment(ctx context.Context, a Assignment) (Assignment, error)
	DeactivateAssignment(ctx context.Context, userID, roleID int64) error
	DeactivateEffectiveOverrides(ctx context.Context, userID, permissionID int64) error
	InsertOverride(ctx context.Context, o Override) (int64, error)
	DeactivateOverride(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, rec audit.Record) error
}

type txRepo struct {
	tx       pgx.Tx
	recorder *audit.Recorder
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, recorder: r.recorder})
	})
}

// GetAssignment fetches the assignment row for a (user, role) pair.
func (r *Repository) GetAssignment(ctx context.Context, userID, roleID int64) (Assignment, error) {
	return scanAssignment(r.pool.QueryRow(ctx, selectAssignmentSQL+` WHERE user_id = $1 AND role_id = $2`, userID, roleID))
}

// ListAssignments returns a user's active assignments.
func (r *Repository) ListAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, selectAssignmentSQL+` WHERE user_id = $1 AND is_active ORDER BY role_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list assignments: %w", err)
	}
	defer rows.Close()

	var list []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: rows: %w", err)
	}
	return list, nil
}

// GetOverride fetches an override by ID.
func (r *Repository) GetOverride(ctx context.Context, id int64) (Override, error) {
	return scanOverride(r.pool.QueryRow(ctx, selectOverrideSQL+` WHERE id = $1`, id))
}

// FindEffectiveOverride returns the effective override for a pair, if any.
func (r *Repository) FindEffectiveOverride(ctx context.Context, userID, permissionID int64) (Override, bool, error) {
	o, err := scanOverride(r.pool.QueryRow(ctx, selectOverrideSQL+`
		WHERE user_id = $1 AND permission_id = $2 AND is_active
		  AND (expiry_at IS NULL OR expiry_at > NOW())
		ORDER BY created_at DESC
		LIMIT 1`, userID, permissionID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Override{}, false, nil
		}
		return Override{}, false, err
	}
	return o, true, nil
}

// ListOverrides returns a user's active overrides.
func (r *Repository) ListOverrides(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx, selectOverrideSQL+` WHERE user_id = $1 AND is_active ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("grants: list overrides: %w", err)
	}
	defer rows.Close()

	var list []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: rows: %w", err)
	}
	return list, nil
}

const selectAssignmentSQL = `
	SELECT id, user_id, role_id, assigned_at, assigned_by, expiry_at, is_active
	FROM user_role_assignments`

const selectOverrideSQL = `
	SELECT id, user_id, permission_id, is_granted, reason, expiry_at, created_at, created_by, is_active
	FROM user_permission_overrides`

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a          Assignment
		assignedAt pgtype.Timestamptz
		expiryAt   pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &assignedAt, &a.AssignedBy, &expiryAt, &a.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, fmt.Errorf("grants: scan assignment: %w", err)
	}
	a.AssignedAt = assignedAt.Time
	if expiryAt.Valid {
		t := expiryAt.Time
		a.ExpiryAt = &t
	}
	return a, nil
}

func scanOverride(row pgx.Row) (Override, error) {
	var (
		o         Override
		createdAt pgtype.Timestamptz
		expiryAt  pgtype.Timestamptz
	)
	err := row.Scan(&o.ID, &o.UserID, &o.PermissionID, &o.IsGranted, &o.Reason, &expiryAt, &createdAt, &o.CreatedBy, &o.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Override{}, shared.ErrNotFound
		}
		return Override{}, fmt.Errorf("grants: scan override: %w", err)
	}
	o.CreatedAt = createdAt.Time
	if expiryAt.Valid {
		t := expiryAt.Time
		o.ExpiryAt = &t
	}
	return o, nil
}

func (t *txRepo) UpsertAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	// One row per (user, role); a revoked or expired assignment is
	// reactivated in place rather than re-inserted.
	row := t.tx.QueryRow(ctx, `
		INSERT INTO user_role_assignments (user_id, role_id, assigned_at, assigned_by, expiry_at, is_active)
		VALUES ($1, $2, NOW(), $3, $4, TRUE)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET assigned_at = NOW(), assigned_by = EXCLUDED.assigned_by, expiry_at = EXCLUDED.expiry_at, is_active = TRUE
		RETURNING id, user_id, role_id, assigned_at, assigned_by, expiry_at, is_active`,
		a.UserID, a.RoleID, a.AssignedBy, nullableTime(a.ExpiryAt))
	return scanAssignment(row)
}

func (t *txRepo) DeactivateAssignment(ctx context.Context, userID, roleID int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE user_role_assignments SET is_active = FALSE
		WHERE user_id = $1 AND role_id = $2 AND is_active`, userID, roleID)
	if err != nil {
		return fmt.Errorf("grants: deactivate assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeactivateEffectiveOverrides(ctx context.Context, userID, permissionID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE user_permission_overrides SET is_active = FALSE
		WHERE user_id = $1 AND permission_id = $2 AND is_active`, userID, permissionID)
	if err != nil {
		return fmt.Errorf("grants: deactivate overrides: %w", err)
	}
	return nil
}

func (t *txRepo) InsertOverride(ctx context.Context, o Override) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO user_permission_overrides (user_id, permission_id, is_granted, reason, expiry_at, created_at, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6, TRUE)
		RETURNING id`,
		o.UserID, o.PermissionID, o.IsGranted, o.Reason, nullableTime(o.ExpiryAt), o.CreatedBy).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("grants: insert override: %w", err)
	}
	return id, nil
}

func (t *txRepo) DeactivateOverride(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE user_permission_overrides SET is_active = FALSE
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("grants: deactivate override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) AppendAudit(ctx context.Context, rec audit.Record) error {
	return t.recorder.RecordTx(ctx, t.tx, rec)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
