package grants

import "time"

// Assignment links a user to a role. An assignment is effective iff it is
// active and its expiry is unset or in the future.
type Assignment struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"userId"`
	RoleID     int64      `json:"roleId"`
	AssignedAt time.Time  `json:"assignedAt"`
	AssignedBy int64      `json:"assignedBy"`
	ExpiryAt   *time.Time `json:"expiryAt,omitempty"`
	Active     bool       `json:"active"`
}

// Override is a per-user, per-permission grant or deny exception to the
// role-derived decision. At most one override per (user, permission) pair
// is effective at a time; that is enforced on the write path.
type Override struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"userId"`
	PermissionID int64      `json:"permissionId"`
	IsGranted    bool       `json:"isGranted"`
	Reason       string     `json:"reason"`
	ExpiryAt     *time.Time `json:"expiryAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CreatedBy    int64      `json:"createdBy"`
	Active       bool       `json:"active"`
}

// AssignRoleRequest carries a role assignment payload.
type AssignRoleRequest struct {
	UserID   int64      `json:"userId" validate:"required,gt=0"`
	RoleID   int64      `json:"roleId" validate:"required,gt=0"`
	ExpiryAt *time.Time `json:"expiryAt"`
	Reason   string     `json:"reason"`
}

// SetOverrideRequest carries an override payload. Overrides always carry a
// human-readable reason.
type SetOverrideRequest struct {
	UserID       int64      `json:"userId" validate:"required,gt=0"`
	PermissionID int64      `json:"permissionId" validate:"required,gt=0"`
	IsGranted    bool       `json:"isGranted"`
	ExpiryAt     *time.Time `json:"expiryAt"`
	Reason       string     `json:"reason" validate:"required,min=3"`
}
