package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error)
}

// MutationObserver counts successful administrative mutations.
type MutationObserver interface {
	ObserveMutation(action string)
}

// Service handles role administration. Every successful mutation appends
// exactly one audit entry within the mutation's transaction.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	observer MutationObserver
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// SetObserver installs an optional mutation counter.
func (s *Service) SetObserver(o MutationObserver) {
	s.observer = o
}

func (s *Service) observe(action audit.Action) {
	if s.observer != nil {
		s.observer.ObserveMutation(string(action))
	}
}

// ListRoles returns all active roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRolePermissions returns the active grant edges of a role.
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissions(ctx, roleID)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, req CreateRoleRequest, actorID int64) (Role, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if err := s.validate.Struct(req); err != nil {
		return Role{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	role := Role{
		Name:              req.Name,
		Code:              req.Code,
		ScopeDepartmentID: req.ScopeDepartmentID,
		ScopeCompanyID:    req.ScopeCompanyID,
		Active:            true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRole(ctx, role)
		if err != nil {
			return err
		}
		role.ID = id
		return tx.AppendAudit(ctx, audit.Record{
			SubjectID: actorID,
			Action:    audit.ActionRoleCreate,
			Target:    audit.RoleTarget(id),
			New:       role,
			Reason:    req.Reason,
			ActorID:   actorID,
		})
	})
	if err != nil {
		return Role{}, err
	}
	s.observe(audit.ActionRoleCreate)
	return role, nil
}

// UpdateRole updates an existing role. System roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, id int64, req UpdateRoleRequest, actorID int64) (Role, error) {
	if err := s.validate.Struct(req); err != nil {
		return Role{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystemRole {
		return Role{}, shared.ErrSystemRoleImmutable
	}

	updated := current
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.ScopeDepartmentID != nil {
		updated.ScopeDepartmentID = req.ScopeDepartmentID
	}
	if req.ScopeCompanyID != nil {
		updated.ScopeCompanyID = req.ScopeCompanyID
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRole(ctx, updated); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Record{
			SubjectID: actorID,
			Action:    audit.ActionRoleUpdate,
			Target:    audit.RoleTarget(id),
			Old:       current,
			New:       updated,
			Reason:    req.Reason,
			ActorID:   actorID,
		})
	})
	if err != nil {
		return Role{}, err
	}
	s.observe(audit.ActionRoleUpdate)
	return updated, nil
}

// DeleteRole soft-deletes a role. Rejected for system roles and for roles
// that still carry effective user assignments.
func (s *Service) DeleteRole(ctx context.Context, id int64, reason string, actorID int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystemRole {
		return shared.ErrSystemRoleImmutable
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// The in-use check shares the delete's transaction so a grant
		// landing concurrently cannot strip access silently.
		inUse, err := tx.CountEffectiveAssignments(ctx, id)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("%w: %d effective assignments", shared.ErrRoleInUse, inUse)
		}
		if err := tx.DeactivateRole(ctx, id); err != nil {
			return err
		}
		deleted := current
		deleted.Active = false
		return tx.AppendAudit(ctx, audit.Record{
			SubjectID: actorID,
			Action:    audit.ActionRoleDelete,
			Target:    audit.RoleTarget(id),
			Old:       current,
			New:       deleted,
			Reason:    reason,
			ActorID:   actorID,
		})
	})
	if err != nil {
		return err
	}
	s.observe(audit.ActionRoleDelete)
	return nil
}

// SetRolePermissions replaces the permission set of a role. All current
// edges are deactivated, then the requested set is reactivated or inserted
// so the history of prior grants is preserved.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, req SetRolePermissionsRequest, actorID int64) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	current, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if current.IsSystemRole {
		return shared.ErrSystemRoleImmutable
	}
	before, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	oldIDs := make([]int64, 0, len(before))
	for _, edge := range before {
		oldIDs = append(oldIDs, edge.PermissionID)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeactivateRolePermissions(ctx, roleID); err != nil {
			return err
		}
		for _, permissionID := range req.PermissionIDs {
			err := tx.UpsertRolePermission(ctx, RolePermission{
				RoleID:       roleID,
				PermissionID: permissionID,
				GrantedBy:    actorID,
				Active:       true,
			})
			if err != nil {
				return err
			}
		}
		return tx.AppendAudit(ctx, audit.Record{
			SubjectID: actorID,
			Action:    audit.ActionRolePermissionsSet,
			Target:    audit.RoleTarget(roleID),
			Old:       map[string]any{"permissionIds": oldIDs},
			New:       map[string]any{"permissionIds": req.PermissionIDs},
			Reason:    req.Reason,
			ActorID:   actorID,
		})
	})
	if err != nil {
		return err
	}
	s.observe(audit.ActionRolePermissionsSet)
	return nil
}
