package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhr/meridian/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the permission catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns every active catalog entry ordered by module and type.
func (r *Repository) ListActive(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, module_code, module_name, permission_code, permission_name, is_active
		FROM permissions
		WHERE is_active
		ORDER BY module_code, permission_code`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ModuleCode, &p.ModuleName, &p.PermissionTypeCode, &p.PermissionTypeName, &p.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: rows: %w", err)
	}
	return perms, nil
}

// GetByID fetches a catalog entry by surrogate ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		SELECT id, module_code, module_name, permission_code, permission_name, is_active
		FROM permissions
		WHERE id = $1`, id).
		Scan(&p.ID, &p.ModuleCode, &p.ModuleName, &p.PermissionTypeCode, &p.PermissionTypeName, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, fmt.Errorf("catalog: get by id: %w", err)
	}
	return p, nil
}

// Ensure upserts a catalog entry keyed by (module_code, permission_code).
// Existing rows keep their surrogate ID; names are refreshed.
func (r *Repository) Ensure(ctx context.Context, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (module_code, module_name, permission_code, permission_name, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (module_code, permission_code) WHERE is_active
		DO UPDATE SET module_name = EXCLUDED.module_name, permission_name = EXCLUDED.permission_name
		RETURNING id, module_code, module_name, permission_code, permission_name, is_active`,
		p.ModuleCode, p.ModuleName, p.PermissionTypeCode, p.PermissionTypeName).
		Scan(&p.ID, &p.ModuleCode, &p.ModuleName, &p.PermissionTypeCode, &p.PermissionTypeName, &p.Active)
	if err != nil {
		return Permission{}, fmt.Errorf("catalog: ensure: %w", err)
	}
	return p, nil
}
