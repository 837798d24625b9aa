package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	roles       map[int64]Role
	permissions map[int64][]RolePermission
	nextID      int64
	assignments map[int64]int

	audits []audit.Record

	txError     error
	insertError error

	// onTx runs as each transaction begins, simulating concurrent writes
	// landing between a service's pre-reads and its transaction.
	onTx func()
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:       make(map[int64]Role),
		permissions: make(map[int64][]RolePermission),
		assignments: make(map[int64]int),
		nextID:      1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	if m.onTx != nil {
		m.onTx()
	}
	shadow := &mockTxRepo{mock: m}
	if err := fn(ctx, shadow); err != nil {
		// Rollback: discard staged writes.
		return err
	}
	shadow.commit()
	return nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok || !role.Active {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (m *mockRepository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	for _, role := range m.roles {
		if role.Code == code && role.Active {
			return role, nil
		}
	}
	return Role{}, shared.ErrNotFound
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.Active {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *mockRepository) ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	var out []RolePermission
	for _, edge := range m.permissions[roleID] {
		if edge.Active {
			out = append(out, edge)
		}
	}
	return out, nil
}

// mockTxRepo stages writes and applies them on commit, mirroring
// transactional rollback semantics.
type mockTxRepo struct {
	mock    *mockRepository
	applied []func()
}

func (t *mockTxRepo) commit() {
	for _, fn := range t.applied {
		fn()
	}
}

func (t *mockTxRepo) InsertRole(ctx context.Context, role Role) (int64, error) {
	if t.mock.insertError != nil {
		return 0, t.mock.insertError
	}
	for _, existing := range t.mock.roles {
		if existing.Code == role.Code {
			return 0, shared.ErrDuplicateRoleCode
		}
	}
	id := t.mock.nextID
	t.mock.nextID++
	role.ID = id
	t.applied = append(t.applied, func() { t.mock.roles[id] = role })
	return id, nil
}

func (t *mockTxRepo) UpdateRole(ctx context.Context, role Role) error {
	t.applied = append(t.applied, func() { t.mock.roles[role.ID] = role })
	return nil
}

func (t *mockTxRepo) CountEffectiveAssignments(ctx context.Context, roleID int64) (int, error) {
	return t.mock.assignments[roleID], nil
}

func (t *mockTxRepo) DeactivateRole(ctx context.Context, id int64) error {
	t.applied = append(t.applied, func() {
		role := t.mock.roles[id]
		role.Active = false
		t.mock.roles[id] = role
	})
	return nil
}

func (t *mockTxRepo) DeactivateRolePermissions(ctx context.Context, roleID int64) error {
	t.applied = append(t.applied, func() {
		edges := t.mock.permissions[roleID]
		for i := range edges {
			edges[i].Active = false
		}
		t.mock.permissions[roleID] = edges
	})
	return nil
}

func (t *mockTxRepo) UpsertRolePermission(ctx context.Context, edge RolePermission) error {
	t.applied = append(t.applied, func() {
		edges := t.mock.permissions[edge.RoleID]
		for i := range edges {
			if edges[i].PermissionID == edge.PermissionID {
				edges[i].Active = true
				edges[i].GrantedBy = edge.GrantedBy
				t.mock.permissions[edge.RoleID] = edges
				return
			}
		}
		t.mock.permissions[edge.RoleID] = append(edges, edge)
	})
	return nil
}

func (t *mockTxRepo) AppendAudit(ctx context.Context, rec audit.Record) error {
	t.applied = append(t.applied, func() { t.mock.audits = append(t.mock.audits, rec) })
	return nil
}

func seedRole(m *mockRepository, role Role) Role {
	if role.ID == 0 {
		role.ID = m.nextID
		m.nextID++
	}
	role.Active = true
	m.roles[role.ID] = role
	return role
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRoleAppendsOneAuditEntry(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	role, err := svc.CreateRole(context.Background(), CreateRoleRequest{
		Name:   "HR Manager",
		Code:   "HR_MANAGER",
		Reason: "new hire workflow",
	}, 42)
	require.NoError(t, err)
	assert.NotZero(t, role.ID)
	assert.True(t, role.Active)

	require.Len(t, repo.audits, 1)
	entry := repo.audits[0]
	assert.Equal(t, audit.ActionRoleCreate, entry.Action)
	assert.Equal(t, audit.RoleTarget(role.ID), entry.Target)
	assert.EqualValues(t, 42, entry.ActorID)
	assert.Equal(t, "new hire workflow", entry.Reason)
}

func TestCreateRoleValidation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	cases := []struct {
		name string
		req  CreateRoleRequest
	}{
		{"empty name", CreateRoleRequest{Code: "HR_MANAGER"}},
		{"lowercase code", CreateRoleRequest{Name: "HR Manager", Code: "hr_manager"}},
		{"code too short", CreateRoleRequest{Name: "HR Manager", Code: "H"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRole(context.Background(), tc.req, 42)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	assert.Empty(t, repo.audits, "rejected mutations must not be audited")
}

func TestCreateRoleDuplicateCode(t *testing.T) {
	repo := newMockRepository()
	seedRole(repo, Role{Name: "HR Manager", Code: "HR_MANAGER"})
	svc := NewService(repo)

	_, err := svc.CreateRole(context.Background(), CreateRoleRequest{
		Name: "Another", Code: "HR_MANAGER",
	}, 42)
	assert.ErrorIs(t, err, shared.ErrDuplicateRoleCode)
	assert.Empty(t, repo.audits)
}

func TestUpdateRoleSystemRoleIsImmutable(t *testing.T) {
	repo := newMockRepository()
	role := seedRole(repo, Role{Name: "Employee", Code: "EMPLOYEE", IsSystemRole: true})
	svc := NewService(repo)

	name := "Renamed"
	_, err := svc.UpdateRole(context.Background(), role.ID, UpdateRoleRequest{Name: &name}, 42)
	assert.ErrorIs(t, err, shared.ErrSystemRoleImmutable)

	err = svc.DeleteRole(context.Background(), role.ID, "cleanup", 42)
	assert.ErrorIs(t, err, shared.ErrSystemRoleImmutable)
	assert.Empty(t, repo.audits)
}

func TestUpdateRolePatchesOnlyProvidedFields(t *testing.T) {
	repo := newMockRepository()
	dept := int64(7)
	role := seedRole(repo, Role{Name: "HR Manager", Code: "HR_MANAGER", ScopeDepartmentID: &dept})
	svc := NewService(repo)

	name := "People Manager"
	updated, err := svc.UpdateRole(context.Background(), role.ID, UpdateRoleRequest{Name: &name}, 42)
	require.NoError(t, err)
	assert.Equal(t, "People Manager", updated.Name)
	assert.Equal(t, "HR_MANAGER", updated.Code)
	require.NotNil(t, updated.ScopeDepartmentID)
	assert.EqualValues(t, 7, *updated.ScopeDepartmentID)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, audit.ActionRoleUpdate, repo.audits[0].Action)
}

func TestDeleteRoleRejectedWhileInUse(t *testing.T) {
	repo := newMockRepository()
	role := seedRole(repo, Role{Name: "HR Manager", Code: "HR_MANAGER"})
	repo.assignments[role.ID] = 3
	svc := NewService(repo)

	err := svc.DeleteRole(context.Background(), role.ID, "cleanup", 42)
	assert.ErrorIs(t, err, shared.ErrRoleInUse)

	got, err := repo.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestDeleteRoleRejectsAssignmentGrantedConcurrently(t *testing.T) {
	repo := newMockRepository()
	role := seedRole(repo, Role{Name: "HR Manager", Code: "HR_MANAGER"})
	// The assignment lands after the role lookup, as each transaction
	// begins. The in-tx count must still see it and block the delete.
	repo.onTx = func() { repo.assignments[role.ID] = 1 }
	svc := NewService(repo)

	err := svc.DeleteRole(context.Background(), role.ID, "cleanup", 42)
	assert.ErrorIs(t, err, shared.ErrRoleInUse)

	got, err := repo.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Empty(t, repo.audits)
}

func TestDeleteRoleSoftDeletes(t *testing.T) {
	repo := newMockRepository()
	role := seedRole(repo, Role{Name: "HR Manager", Code: "HR_MANAGER"})
	svc := NewService(repo)

	err := svc.DeleteRole(context.Background(), role.ID, "restructuring", 42)
	require.NoError(t, err)

	_, err = repo.GetRole(context.Background(), role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, audit.ActionRoleDelete, repo.audits[0].Action)
	assert.Equal(t, "restructuring", repo.audits[0].Reason)
}

func TestSetRolePermissionsReplacesSet(t *testing.T) {
	repo := newMockRepository()
	role := seedRole(repo, Role{Name: "HR Manager", Code: "HR_MANAGER"})
	repo.permissions[role.ID] = []RolePermission{
		{RoleID: role.ID, PermissionID: 1, Active: true},
		{RoleID: role.ID, PermissionID: 2, Active: true},
	}
	svc := NewService(repo)

	err := svc.SetRolePermissions(context.Background(), role.ID, SetRolePermissionsRequest{
		PermissionIDs: []int64{2, 3},
		Reason:        "scope change",
	}, 42)
	require.NoError(t, err)

	edges, err := repo.ListRolePermissions(context.Background(), role.ID)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	ids := []int64{edges[0].PermissionID, edges[1].PermissionID}
	assert.ElementsMatch(t, []int64{2, 3}, ids)

	require.Len(t, repo.audits, 1)
	entry := repo.audits[0]
	assert.Equal(t, audit.ActionRolePermissionsSet, entry.Action)
	assert.Equal(t, map[string]any{"permissionIds": []int64{1, 2}}, entry.Old)
	assert.Equal(t, map[string]any{"permissionIds": []int64{2, 3}}, entry.New)
}

func TestSetRolePermissionsSystemRoleRejected(t *testing.T) {
	repo := newMockRepository()
	role := seedRole(repo, Role{Name: "Employee", Code: "EMPLOYEE", IsSystemRole: true})
	svc := NewService(repo)

	err := svc.SetRolePermissions(context.Background(), role.ID, SetRolePermissionsRequest{
		PermissionIDs: []int64{1},
	}, 42)
	assert.ErrorIs(t, err, shared.ErrSystemRoleImmutable)
}

func TestMutationRollbackDiscardsAudit(t *testing.T) {
	repo := newMockRepository()
	repo.insertError = assert.AnError
	svc := NewService(repo)

	_, err := svc.CreateRole(context.Background(), CreateRoleRequest{
		Name: "HR Manager", Code: "HR_MANAGER",
	}, 42)
	require.Error(t, err)
	assert.Empty(t, repo.audits, "audit entry must roll back with the mutation")
	assert.Empty(t, repo.roles)
}
