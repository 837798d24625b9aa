package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/catalog"
	"github.com/meridianhr/meridian/internal/roles"
	"github.com/meridianhr/meridian/internal/shared"
	"github.com/meridianhr/meridian/internal/users"
)

// RepositoryPort defines data access methods for grants.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAssignment(ctx context.Context, userID, roleID int64) (Assignment, error)
	ListAssignments(ctx context.Context, userID int64) ([]Assignment, error)
	GetOverride(ctx context.Context, id int64) (Override, error)
	FindEffectiveOverride(ctx context.Context, userID, permissionID int64) (Override, bool, error)
	ListOverrides(ctx context.Context, userID int64) ([]Override, error)
}

// RolesPort resolves roles referenced by assignments.
type RolesPort interface {
	GetRole(ctx context.Context, id int64) (roles.Role, error)
}

// UsersPort resolves users referenced by grants.
type UsersPort interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// CatalogPort resolves permissions referenced by overrides.
type CatalogPort interface {
	GetByID(ctx context.Context, id int64) (catalog.Permission, error)
}

// MutationObserver counts successful administrative mutations.
type MutationObserver interface {
	ObserveMutation(action string)
}

// Service handles user-role assignments and permission overrides. Every
// successful mutation appends exactly one audit entry in-transaction.
type Service struct {
	repo     RepositoryPort
	roles    RolesPort
	users    UsersPort
	catalog  CatalogPort
	validate *validator.Validate
	observer MutationObserver
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, rolesPort RolesPort, usersPort UsersPort, catalogPort CatalogPort) *Service {
	return &Service{
		repo:     repo,
		roles:    rolesPort,
		users:    usersPort,
		catalog:  catalogPort,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
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

// ListAssignments returns a user's active assignments.
func (s *Service) ListAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	return s.repo.ListAssignments(ctx, userID)
}

// ListOverrides returns a user's active overrides.
func (s *Service) ListOverrides(ctx context.Context, userID int64) ([]Override, error) {
	return s.repo.ListOverrides(ctx, userID)
}

// AssignRole grants a role to a user, reactivating a previously revoked or
// expired assignment in place.
func (s *Service) AssignRole(ctx context.Context, req AssignRoleRequest, actorID int64) (Assignment, error) {
	if err := s.validate.Struct(req); err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if req.ExpiryAt != nil && !req.ExpiryAt.After(s.now()) {
		return Assignment{}, fmt.Errorf("%w: expiry must be in the future", shared.ErrValidation)
	}
	if _, err := s.users.Get(ctx, req.UserID); err != nil {
		return Assignment{}, fmt.Errorf("grants: user %d: %w", req.UserID, err)
	}
	role, err := s.roles.GetRole(ctx, req.RoleID)
	if err != nil {
		return Assignment{}, fmt.Errorf("grants: role %d: %w", req.RoleID, err)
	}
	if !role.Active {
		return Assignment{}, fmt.Errorf("grants: role %s: %w", role.Code, shared.ErrNotFound)
	}

	old, err := s.repo.GetAssignment(ctx, req.UserID, req.RoleID)
	hadPrevious := err == nil
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Assignment{}, err
	}

	var stored Assignment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stored, err = tx.UpsertAssignment(ctx, Assignment{
			UserID:     req.UserID,
			RoleID:     req.RoleID,
			AssignedBy: actorID,
			ExpiryAt:   req.ExpiryAt,
		})
		if err != nil {
			return err
		}
		rec := audit.Record{
			SubjectID: req.UserID,
			Action:    audit.ActionAssignmentGrant,
			Target:    audit.AssignmentTarget(stored.ID),
			New:       stored,
			Reason:    strings.TrimSpace(req.Reason),
			ActorID:   actorID,
		}
		if hadPrevious {
			rec.Old = old
		}
		return tx.AppendAudit(ctx, rec)
	})
	if err != nil {
		return Assignment{}, err
	}
	s.observe(audit.ActionAssignmentGrant)
	return stored, nil
}

// RemoveRole revokes a user's role assignment.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64, reason string, actorID int64) error {
	old, err := s.repo.GetAssignment(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !old.Active {
		return shared.ErrNotFound
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeactivateAssignment(ctx, userID, roleID); err != nil {
			return err
		}
		revoked := old
		revoked.Active = false
		return tx.AppendAudit(ctx, audit.Record{
			SubjectID: userID,
			Action:    audit.ActionAssignmentRevoke,
			Target:    audit.AssignmentTarget(old.ID),
			Old:       old,
			New:       revoked,
			Reason:    strings.TrimSpace(reason),
			ActorID:   actorID,
		})
	})
	if err != nil {
		return err
	}
	s.observe(audit.ActionAssignmentRevoke)
	return nil
}

// SetOverride records a grant or deny override for a (user, permission)
// pair. Any override currently effective for the pair is deactivated in the
// same transaction, keeping at most one effective override per pair.
func (s *Service) SetOverride(ctx context.Context, req SetOverrideRequest, actorID int64) (Override, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		return Override{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if req.ExpiryAt != nil && !req.ExpiryAt.After(s.now()) {
		return Override{}, fmt.Errorf("%w: expiry must be in the future", shared.ErrValidation)
	}
	if _, err := s.users.Get(ctx, req.UserID); err != nil {
		return Override{}, fmt.Errorf("grants: user %d: %w", req.UserID, err)
	}
	if _, err := s.catalog.GetByID(ctx, req.PermissionID); err != nil {
		return Override{}, fmt.Errorf("grants: permission %d: %w", req.PermissionID, err)
	}

	previous, hadPrevious, err := s.repo.FindEffectiveOverride(ctx, req.UserID, req.PermissionID)
	if err != nil {
		return Override{}, err
	}

	override := Override{
		UserID:       req.UserID,
		PermissionID: req.PermissionID,
		IsGranted:    req.IsGranted,
		Reason:       req.Reason,
		ExpiryAt:     req.ExpiryAt,
		CreatedBy:    actorID,
		Active:       true,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeactivateEffectiveOverrides(ctx, req.UserID, req.PermissionID); err != nil {
			return err
		}
		id, err := tx.InsertOverride(ctx, override)
		if err != nil {
			return err
		}
		override.ID = id
		rec := audit.Record{
			SubjectID: req.UserID,
			Action:    audit.ActionOverrideSet,
			Target:    audit.OverrideTarget(id),
			New:       override,
			Reason:    req.Reason,
			ActorID:   actorID,
		}
		if hadPrevious {
			rec.Old = previous
		}
		return tx.AppendAudit(ctx, rec)
	})
	if err != nil {
		return Override{}, err
	}
	s.observe(audit.ActionOverrideSet)
	return override, nil
}

// RemoveOverride deactivates an override by ID.
func (s *Service) RemoveOverride(ctx context.Context, overrideID int64, reason string, actorID int64) error {
	old, err := s.repo.GetOverride(ctx, overrideID)
	if err != nil {
		return err
	}
	if !old.Active {
		return shared.ErrNotFound
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeactivateOverride(ctx, overrideID); err != nil {
			return err
		}
		removed := old
		removed.Active = false
		return tx.AppendAudit(ctx, audit.Record{
			SubjectID: old.UserID,
			Action:    audit.ActionOverrideRemove,
			Target:    audit.OverrideTarget(overrideID),
			Old:       old,
			New:       removed,
			Reason:    strings.TrimSpace(reason),
			ActorID:   actorID,
		})
	})
	if err != nil {
		return err
	}
	s.observe(audit.ActionOverrideRemove)
	return nil
}
