package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/platform/db"
	"github.com/meridianhr/meridian/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, recorder *audit.Recorder) *Repository {
	return &Repository{pool: pool, recorder: recorder}
}

// TxRepository exposes transactional role operations. The audit append runs
// inside the same transaction as the guarded mutation, so a failed append
// rolls the mutation back.
type TxRepository interface {
	InsertRole(ctx context.Context, role Role) (int64, error)
	UpdateRole(ctx context.Context, role Role) error
	CountEffectiveAssignments(ctx context.Context, roleID int64) (int, error)
	DeactivateRole(ctx context.Context, id int64) error
	DeactivateRolePermissions(ctx context.Context, roleID int64) error
	UpsertRolePermission(ctx context.Context, edge RolePermission) error
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

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, selectRoleSQL+` WHERE id = $1`, id))
}

// GetRoleByCode fetches a role by its unique code.
func (r *Repository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, selectRoleSQL+` WHERE code = $1`, code))
}

// ListRoles returns all active roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, selectRoleSQL+` WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: rows: %w", err)
	}
	return roles, nil
}

// ListRolePermissions returns the active grant edges of a role.
func (r *Repository) ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, permission_id, granted_at, granted_by, is_active
		FROM role_permissions
		WHERE role_id = $1 AND is_active
		ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("roles: list permissions: %w", err)
	}
	defer rows.Close()

	var edges []RolePermission
	for rows.Next() {
		var (
			edge      RolePermission
			grantedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&edge.RoleID, &edge.PermissionID, &grantedAt, &edge.GrantedBy, &edge.Active); err != nil {
			return nil, fmt.Errorf("roles: scan permission edge: %w", err)
		}
		edge.GrantedAt = grantedAt.Time
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: rows: %w", err)
	}
	return edges, nil
}

const selectRoleSQL = `
	SELECT id, name, code, is_system_role, scope_department_id, scope_company_id, is_active, created_at, updated_at
	FROM roles`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role      Role
		deptID    pgtype.Int8
		companyID pgtype.Int8
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&role.ID, &role.Name, &role.Code, &role.IsSystemRole, &deptID, &companyID, &role.Active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("roles: scan: %w", err)
	}
	if deptID.Valid {
		v := deptID.Int64
		role.ScopeDepartmentID = &v
	}
	if companyID.Valid {
		v := companyID.Int64
		role.ScopeCompanyID = &v
	}
	role.CreatedAt = createdAt.Time
	role.UpdatedAt = updatedAt.Time
	return role, nil
}

func (t *txRepo) InsertRole(ctx context.Context, role Role) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO roles (name, code, is_system_role, scope_department_id, scope_company_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		RETURNING id`,
		role.Name, role.Code, role.IsSystemRole, nullableID(role.ScopeDepartmentID), nullableID(role.ScopeCompanyID)).
		Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrDuplicateRoleCode
		}
		return 0, fmt.Errorf("roles: insert: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateRole(ctx context.Context, role Role) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE roles
		SET name = $2, scope_department_id = $3, scope_company_id = $4, updated_at = NOW()
		WHERE id = $1 AND is_active`,
		role.ID, role.Name, nullableID(role.ScopeDepartmentID), nullableID(role.ScopeCompanyID))
	if err != nil {
		return fmt.Errorf("roles: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountEffectiveAssignments reports how many user assignments of the role
// are active and unexpired. It reads inside the delete transaction so a
// concurrent grant cannot slip between the check and the deactivation.
func (t *txRepo) CountEffectiveAssignments(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_role_assignments
		WHERE role_id = $1 AND is_active AND (expiry_at IS NULL OR expiry_at > NOW())`, roleID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("roles: count assignments: %w", err)
	}
	return count, nil
}

func (t *txRepo) DeactivateRole(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE roles SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("roles: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) DeactivateRolePermissions(ctx context.Context, roleID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE role_permissions SET is_active = FALSE
		WHERE role_id = $1 AND is_active`, roleID)
	if err != nil {
		return fmt.Errorf("roles: deactivate permissions: %w", err)
	}
	return nil
}

func (t *txRepo) UpsertRolePermission(ctx context.Context, edge RolePermission) error {
	// Reactivate an existing edge when present so grant history survives.
	tag, err := t.tx.Exec(ctx, `
		UPDATE role_permissions
		SET is_active = TRUE, granted_at = $3, granted_by = $4
		WHERE role_id = $1 AND permission_id = $2`,
		edge.RoleID, edge.PermissionID, timeOrNow(edge.GrantedAt), edge.GrantedBy)
	if err != nil {
		return fmt.Errorf("roles: reactivate permission edge: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_at, granted_by, is_active)
		VALUES ($1, $2, $3, $4, TRUE)`,
		edge.RoleID, edge.PermissionID, timeOrNow(edge.GrantedAt), edge.GrantedBy)
	if err != nil {
		return fmt.Errorf("roles: insert permission edge: %w", err)
	}
	return nil
}

func (t *txRepo) AppendAudit(ctx context.Context, rec audit.Record) error {
	return t.recorder.RecordTx(ctx, t.tx, rec)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
