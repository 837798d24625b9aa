package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action enumerates audited administrative actions.
type Action string

const (
	ActionRoleCreate         Action = "ROLE_CREATE"
	ActionRoleUpdate         Action = "ROLE_UPDATE"
	ActionRoleDelete         Action = "ROLE_DELETE"
	ActionRolePermissionsSet Action = "ROLE_PERMISSIONS_SET"
	ActionAssignmentGrant    Action = "ASSIGNMENT_GRANT"
	ActionAssignmentRevoke   Action = "ASSIGNMENT_REVOKE"
	ActionOverrideSet        Action = "OVERRIDE_SET"
	ActionOverrideRemove     Action = "OVERRIDE_REMOVE"
)

// TargetKind discriminates the audited record type.
type TargetKind string

const (
	TargetRole       TargetKind = "ROLE"
	TargetAssignment TargetKind = "ASSIGNMENT"
	TargetOverride   TargetKind = "OVERRIDE"
)

// Target identifies the record an entry refers to. Constructed only through
// the typed helpers so a malformed kind/id pair cannot be written.
type Target struct {
	Kind TargetKind
	ID   int64
}

// RoleTarget points an entry at a role record.
func RoleTarget(id int64) Target { return Target{Kind: TargetRole, ID: id} }

// AssignmentTarget points an entry at a user-role assignment record.
func AssignmentTarget(id int64) Target { return Target{Kind: TargetAssignment, ID: id} }

// OverrideTarget points an entry at a user permission override record.
func OverrideTarget(id int64) Target { return Target{Kind: TargetOverride, ID: id} }

// Entry is one append-only audit record. Entries are never mutated or
// deleted and are never read by the resolution engine.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	SubjectID int64           `json:"subjectId"`
	Action    Action          `json:"action"`
	Target    Target          `json:"target"`
	OldValue  json.RawMessage `json:"oldValue,omitempty"`
	NewValue  json.RawMessage `json:"newValue,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ActorID   int64           `json:"actorId"`
	At        time.Time       `json:"at"`
}
