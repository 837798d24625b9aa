package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrSystemRoleImmutable indicates an attempt to mutate a system role.
	ErrSystemRoleImmutable = errors.New("system role is immutable")
	// ErrRoleInUse indicates a role still has effective user assignments.
	ErrRoleInUse = errors.New("role has effective assignments")
	// ErrDuplicateRoleCode indicates a role code collision.
	ErrDuplicateRoleCode = errors.New("role code already exists")
	// ErrValidation indicates a rejected request payload.
	ErrValidation = errors.New("validation failed")
)
