package roles

import "time"

// Role is a named, reusable bundle of catalog permissions. System roles
// reject update and delete. Roles are soft-deleted so history stays
// reconstructable; Code stays unique across active and inactive rows.
type Role struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Code              string    `json:"code"`
	IsSystemRole      bool      `json:"isSystemRole"`
	ScopeDepartmentID *int64    `json:"scopeDepartmentId,omitempty"`
	ScopeCompanyID    *int64    `json:"scopeCompanyId,omitempty"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// RolePermission is a soft-deletable grant edge between a role and a
// catalog permission. Reactivation is preferred over re-insertion.
type RolePermission struct {
	RoleID       int64     `json:"roleId"`
	PermissionID int64     `json:"permissionId"`
	GrantedAt    time.Time `json:"grantedAt"`
	GrantedBy    int64     `json:"grantedBy"`
	Active       bool      `json:"active"`
}

// CreateRoleRequest carries a role creation payload.
type CreateRoleRequest struct {
	Name              string `json:"name" validate:"required,min=2,max=120"`
	Code              string `json:"code" validate:"required,min=2,max=60,uppercase"`
	ScopeDepartmentID *int64 `json:"scopeDepartmentId"`
	ScopeCompanyID    *int64 `json:"scopeCompanyId"`
	Reason            string `json:"reason"`
}

// UpdateRoleRequest carries a role update payload. Nil fields are left as is.
type UpdateRoleRequest struct {
	Name              *string `json:"name" validate:"omitempty,min=2,max=120"`
	ScopeDepartmentID *int64  `json:"scopeDepartmentId"`
	ScopeCompanyID    *int64  `json:"scopeCompanyId"`
	Reason            string  `json:"reason"`
}

// SetRolePermissionsRequest replaces the permission set of a role.
type SetRolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required"`
	Reason        string  `json:"reason"`
}
