package authz

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/meridianhr/meridian/internal/catalog"
)

// RepositoryPort defines snapshot reads for the resolver.
type RepositoryPort interface {
	DecisionSnapshot(ctx context.Context, userID, permissionID int64) (Snapshot, error)
	EffectiveGrants(ctx context.Context, userID int64) (GrantsSnapshot, error)
}

// CatalogPort resolves catalog entries.
type CatalogPort interface {
	Lookup(ctx context.Context, moduleCode, permissionCode string) (catalog.Permission, bool, error)
	ListActive(ctx context.Context) ([]catalog.Permission, error)
}

// DecisionObserver records decision outcomes for metrics.
type DecisionObserver interface {
	ObserveDecision(reason string, granted bool)
}

// Service is the authorization resolution engine. It holds no mutable state
// between calls; every decision is recomputed from a fresh store snapshot,
// so overrides and expiries take effect immediately.
type Service struct {
	repo     RepositoryPort
	catalog  CatalogPort
	observer DecisionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. The observer is optional.
func NewService(repo RepositoryPort, catalogPort CatalogPort, observer DecisionObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  catalogPort,
		observer: observer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HasPermission reports whether the user may perform the permission on the
// module. Absence of data is a normal deny; only store failures return an
// error, and callers must fail closed on them.
func (s *Service) HasPermission(ctx context.Context, userID int64, moduleCode, permissionCode string) (bool, error) {
	decision, err := s.CheckPermission(ctx, userID, moduleCode, permissionCode)
	if err != nil {
		return false, err
	}
	return decision.Granted, nil
}

// CheckPermission runs the same algorithm as HasPermission and returns the
// decision with its reason code and contributing sources.
//
// Precedence, each step short-circuiting:
//  1. missing or inactive user: deny
//  2. system admin: grant
//  3. effective deny override: deny
//  4. effective grant override: grant
//  5. effective role assignment with an active edge to the permission: grant
//  6. default deny
func (s *Service) CheckPermission(ctx context.Context, userID int64, moduleCode, permissionCode string) (Decision, error) {
	perm, found, err := s.catalog.Lookup(ctx, moduleCode, permissionCode)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		return s.observe(Decision{Granted: false, Reason: ReasonPermissionNotFound}), nil
	}

	snap, err := s.repo.DecisionSnapshot(ctx, userID, perm.ID)
	if err != nil {
		return Decision{}, err
	}
	return s.observe(resolve(snap, s.now())), nil
}

func resolve(snap Snapshot, now time.Time) Decision {
	override := snap.Override
	if override != nil && expired(override.ExpiryAt, now) {
		override = nil
	}
	var roles []string
	for _, grant := range snap.GrantingRoles {
		if expired(grant.ExpiryAt, now) {
			continue
		}
		roles = append(roles, grant.RoleName)
	}

	switch {
	case !snap.UserFound || !snap.UserActive:
		return Decision{Granted: false, Reason: ReasonUserUnavailable}
	case snap.IsSystemAdmin:
		return Decision{Granted: true, Reason: ReasonSystemAdmin, Sources: []string{"system"}}
	case override != nil && !override.IsGranted:
		return Decision{Granted: false, Reason: ReasonDenyOverride, Sources: []string{"override"}}
	case override != nil:
		return Decision{Granted: true, Reason: ReasonGrantOverride, Sources: []string{"override"}}
	case len(roles) > 0:
		return Decision{Granted: true, Reason: ReasonRoleGrant, Sources: roles}
	default:
		return Decision{Granted: false, Reason: ReasonNoPermissionFound}
	}
}

// expired reports whether a nullable expiry timestamp has passed. Rows past
// their expiry are equivalent to absent rows; no stored state changes.
func expired(expiryAt *time.Time, now time.Time) bool {
	return expiryAt != nil && !expiryAt.After(now)
}

// ListEffectivePermissions returns every permission currently granted to the
// user with its provenance. System admins get the whole active catalog; for
// everyone else role-grant rows appear once per contributing role, grant
// overrides replace role rows for the same permission, and deny overrides
// suppress the permission entirely.
func (s *Service) ListEffectivePermissions(ctx context.Context, userID int64) ([]EffectivePermission, error) {
	snap, err := s.repo.EffectiveGrants(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !snap.UserFound || !snap.UserActive {
		return []EffectivePermission{}, nil
	}

	if snap.IsSystemAdmin {
		perms, err := s.catalog.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		result := make([]EffectivePermission, 0, len(perms))
		for _, p := range perms {
			result = append(result, EffectivePermission{
				ModuleCode:     p.ModuleCode,
				PermissionCode: p.PermissionTypeCode,
				Source:         SourceSystemAdmin,
			})
		}
		return result, nil
	}

	now := s.now()
	overrides := snap.Overrides[:0:0]
	for _, o := range snap.Overrides {
		if expired(o.ExpiryAt, now) {
			continue
		}
		overrides = append(overrides, o)
	}

	type key struct{ module, perm string }
	overridden := make(map[key]bool, len(overrides)) // value: isGranted
	for _, o := range overrides {
		overridden[key{o.ModuleCode, o.PermissionCode}] = o.IsGranted
	}

	result := make([]EffectivePermission, 0, len(snap.RoleGrants)+len(overrides))
	for _, row := range snap.RoleGrants {
		if expired(row.ExpiryAt, now) {
			continue
		}
		// An override of either polarity owns the permission key: a deny
		// hides it, a grant is surfaced as the override row below.
		if _, ok := overridden[key{row.ModuleCode, row.PermissionCode}]; ok {
			continue
		}
		result = append(result, EffectivePermission{
			ModuleCode:     row.ModuleCode,
			PermissionCode: row.PermissionCode,
			Source:         SourceRoleGrant,
			RoleName:       row.RoleName,
		})
	}
	for _, o := range overrides {
		if !o.IsGranted {
			continue
		}
		result = append(result, EffectivePermission{
			ModuleCode:     o.ModuleCode,
			PermissionCode: o.PermissionCode,
			Source:         SourceOverride,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ModuleCode != result[j].ModuleCode {
			return result[i].ModuleCode < result[j].ModuleCode
		}
		if result[i].PermissionCode != result[j].PermissionCode {
			return result[i].PermissionCode < result[j].PermissionCode
		}
		return result[i].RoleName < result[j].RoleName
	})
	return result, nil
}

func (s *Service) observe(d Decision) Decision {
	if s.observer != nil {
		s.observer.ObserveDecision(string(d.Reason), d.Granted)
	}
	return d
}
