package authz

import "time"

// ReasonCode explains an authorization decision. The codes form the strict
// precedence order of the resolver: user gate, admin bypass, deny override,
// grant override, role grant, default deny.
type ReasonCode string

const (
	// ReasonUserUnavailable denies because the user is missing or inactive.
	ReasonUserUnavailable ReasonCode = "UserUnavailable"
	// ReasonSystemAdmin grants because the user carries the system-admin flag.
	ReasonSystemAdmin ReasonCode = "SystemAdmin"
	// ReasonDenyOverride denies because an effective deny override exists.
	ReasonDenyOverride ReasonCode = "DenyOverride"
	// ReasonGrantOverride grants because an effective grant override exists.
	ReasonGrantOverride ReasonCode = "GrantOverride"
	// ReasonRoleGrant grants through one or more effective role assignments.
	ReasonRoleGrant ReasonCode = "RoleGrant"
	// ReasonNoPermissionFound is the default deny.
	ReasonNoPermissionFound ReasonCode = "NoPermissionFound"
	// ReasonPermissionNotFound denies because the catalog has no such permission.
	ReasonPermissionNotFound ReasonCode = "PermissionNotFound"
)

// Decision is the structured outcome of a permission check.
type Decision struct {
	Granted bool       `json:"granted"`
	Reason  ReasonCode `json:"reasonCode"`
	// Sources names what contributed to a grant: matching role names for
	// RoleGrant, "system" for the admin bypass, "override" for overrides.
	Sources []string `json:"sources,omitempty"`
}

// Grant sources for effective permission listings.
const (
	SourceSystemAdmin = "SystemAdmin"
	SourceRoleGrant   = "RoleGrant"
	SourceOverride    = "Override"
)

// EffectivePermission is one currently granted permission and its origin,
// produced for UI display.
type EffectivePermission struct {
	ModuleCode     string `json:"moduleCode"`
	PermissionCode string `json:"permissionCode"`
	Source         string `json:"source"`
	RoleName       string `json:"roleName,omitempty"`
}

// OverrideState is the override of a (user, permission) pair inside a
// decision snapshot. A past ExpiryAt makes it absent at resolution time.
type OverrideState struct {
	IsGranted bool
	ExpiryAt  *time.Time
}

// RoleGrant is one role assignment contributing the checked permission.
type RoleGrant struct {
	RoleName string
	ExpiryAt *time.Time
}

// Snapshot is all state a single decision reads, taken at one consistent
// point in time. Expiry is evaluated by the resolver against its clock, so
// rows past their ExpiryAt count as absent.
type Snapshot struct {
	UserFound     bool
	UserActive    bool
	IsSystemAdmin bool
	Override      *OverrideState
	GrantingRoles []RoleGrant
}

// RoleGrantRow is one (permission, role) pair reachable through active
// assignments and active role-permission edges.
type RoleGrantRow struct {
	ModuleCode     string
	PermissionCode string
	RoleName       string
	ExpiryAt       *time.Time
}

// OverrideRow is one override with its permission identity.
type OverrideRow struct {
	ModuleCode     string
	PermissionCode string
	IsGranted      bool
	ExpiryAt       *time.Time
}

// GrantsSnapshot is all state an effective-permission listing reads.
type GrantsSnapshot struct {
	UserFound     bool
	UserActive    bool
	IsSystemAdmin bool
	RoleGrants    []RoleGrantRow
	Overrides     []OverrideRow
}
