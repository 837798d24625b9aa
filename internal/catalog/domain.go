package catalog

// Permission pairs a functional module with a permission type.
// Identity is (ModuleCode, PermissionTypeCode); ID is a stable surrogate.
type Permission struct {
	ID                 int64  `json:"id"`
	ModuleCode         string `json:"moduleCode"`
	ModuleName         string `json:"moduleName"`
	PermissionTypeCode string `json:"permissionTypeCode"`
	PermissionTypeName string `json:"permissionTypeName"`
	Active             bool   `json:"active"`
}

// Key identifies a catalog entry by its natural identity.
type Key struct {
	ModuleCode         string
	PermissionTypeCode string
}

// Key returns the natural identity of the permission.
func (p Permission) Key() Key {
	return Key{ModuleCode: p.ModuleCode, PermissionTypeCode: p.PermissionTypeCode}
}
