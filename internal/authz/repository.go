package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhr/meridian/internal/platform/db"
)

// Repository reads decision state from PostgreSQL. Each read runs inside a
// single read-only repeatable-read transaction so one decision never sees a
// torn mix of concurrent administrative writes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DecisionSnapshot gathers everything one HasPermission call needs.
func (r *Repository) DecisionSnapshot(ctx context.Context, userID, permissionID int64) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT is_active, is_system_admin
			FROM users
			WHERE id = $1`, userID).
			Scan(&snap.UserActive, &snap.IsSystemAdmin)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("authz: read user: %w", err)
		}
		snap.UserFound = true
		if !snap.UserActive {
			return nil
		}
		if snap.IsSystemAdmin {
			return nil
		}

		var (
			isGranted bool
			expiryAt  pgtype.Timestamptz
		)
		err = tx.QueryRow(ctx, `
			SELECT is_granted, expiry_at
			FROM user_permission_overrides
			WHERE user_id = $1 AND permission_id = $2 AND is_active
			  AND (expiry_at IS NULL OR expiry_at > NOW())
			ORDER BY created_at DESC
			LIMIT 1`, userID, permissionID).
			Scan(&isGranted, &expiryAt)
		switch {
		case err == nil:
			snap.Override = &OverrideState{IsGranted: isGranted, ExpiryAt: timePtr(expiryAt)}
		case errors.Is(err, pgx.ErrNoRows):
			// no effective override
		default:
			return fmt.Errorf("authz: read override: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT r.name, a.expiry_at
			FROM user_role_assignments a
			JOIN roles r ON r.id = a.role_id AND r.is_active
			JOIN role_permissions rp ON rp.role_id = a.role_id AND rp.is_active AND rp.permission_id = $2
			WHERE a.user_id = $1 AND a.is_active
			  AND (a.expiry_at IS NULL OR a.expiry_at > NOW())
			ORDER BY r.name`, userID, permissionID)
		if err != nil {
			return fmt.Errorf("authz: read role grants: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				grant  RoleGrant
				expiry pgtype.Timestamptz
			)
			if err := rows.Scan(&grant.RoleName, &expiry); err != nil {
				return fmt.Errorf("authz: scan role grant: %w", err)
			}
			grant.ExpiryAt = timePtr(expiry)
			snap.GrantingRoles = append(snap.GrantingRoles, grant)
		}
		return rows.Err()
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// EffectiveGrants gathers everything a ListEffectivePermissions call needs.
func (r *Repository) EffectiveGrants(ctx context.Context, userID int64) (GrantsSnapshot, error) {
	var snap GrantsSnapshot
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT is_active, is_system_admin
			FROM users
			WHERE id = $1`, userID).
			Scan(&snap.UserActive, &snap.IsSystemAdmin)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("authz: read user: %w", err)
		}
		snap.UserFound = true
		if !snap.UserActive || snap.IsSystemAdmin {
			return nil
		}

		rows, err := tx.Query(ctx, `
			SELECT p.module_code, p.permission_code, r.name, a.expiry_at
			FROM user_role_assignments a
			JOIN roles r ON r.id = a.role_id AND r.is_active
			JOIN role_permissions rp ON rp.role_id = a.role_id AND rp.is_active
			JOIN permissions p ON p.id = rp.permission_id AND p.is_active
			WHERE a.user_id = $1 AND a.is_active
			  AND (a.expiry_at IS NULL OR a.expiry_at > NOW())
			ORDER BY p.module_code, p.permission_code, r.name`, userID)
		if err != nil {
			return fmt.Errorf("authz: read role grants: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				row    RoleGrantRow
				expiry pgtype.Timestamptz
			)
			if err := rows.Scan(&row.ModuleCode, &row.PermissionCode, &row.RoleName, &expiry); err != nil {
				return fmt.Errorf("authz: scan role grant: %w", err)
			}
			row.ExpiryAt = timePtr(expiry)
			snap.RoleGrants = append(snap.RoleGrants, row)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		orows, err := tx.Query(ctx, `
			SELECT p.module_code, p.permission_code, o.is_granted, o.expiry_at
			FROM user_permission_overrides o
			JOIN permissions p ON p.id = o.permission_id AND p.is_active
			WHERE o.user_id = $1 AND o.is_active
			  AND (o.expiry_at IS NULL OR o.expiry_at > NOW())
			ORDER BY p.module_code, p.permission_code`, userID)
		if err != nil {
			return fmt.Errorf("authz: read overrides: %w", err)
		}
		defer orows.Close()
		for orows.Next() {
			var (
				row    OverrideRow
				expiry pgtype.Timestamptz
			)
			if err := orows.Scan(&row.ModuleCode, &row.PermissionCode, &row.IsGranted, &expiry); err != nil {
				return fmt.Errorf("authz: scan override: %w", err)
			}
			row.ExpiryAt = timePtr(expiry)
			snap.Overrides = append(snap.Overrides, row)
		}
		return orows.Err()
	})
	if err != nil {
		return GrantsSnapshot{}, err
	}
	return snap, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
