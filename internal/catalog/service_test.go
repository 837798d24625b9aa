package catalog

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhr/meridian/internal/shared"
)

type mockRepo struct {
	perms     []Permission
	listCalls int
	listErr   error
	nextID    int64
}

func (m *mockRepo) ListActive(ctx context.Context) ([]Permission, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.perms, nil
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (Permission, error) {
	for _, p := range m.perms {
		if p.ID == id {
			return p, nil
		}
	}
	return Permission{}, shared.ErrNotFound
}

func (m *mockRepo) Ensure(ctx context.Context, p Permission) (Permission, error) {
	for i, existing := range m.perms {
		if existing.ModuleCode == p.ModuleCode && existing.PermissionTypeCode == p.PermissionTypeCode {
			p.ID = existing.ID
			p.Active = true
			m.perms[i] = p
			return p, nil
		}
	}
	m.nextID++
	p.ID = m.nextID
	p.Active = true
	m.perms = append(m.perms, p)
	return p, nil
}

func newTestService(t *testing.T, repo *mockRepo) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(repo, client, nil)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestListActiveCachesInRedis(t *testing.T) {
	repo := &mockRepo{perms: []Permission{
		{ID: 1, ModuleCode: "EMPLOYEES", PermissionTypeCode: "R", Active: true},
	}}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	for i := 0; i < 3; i++ {
		perms, err := svc.ListActive(context.Background())
		require.NoError(t, err)
		require.Len(t, perms, 1)
	}
	assert.Equal(t, 1, repo.listCalls, "repeat reads are served from cache")
}

func TestEnsureInvalidatesCache(t *testing.T) {
	repo := &mockRepo{perms: []Permission{
		{ID: 1, ModuleCode: "EMPLOYEES", PermissionTypeCode: "R", Active: true},
	}, nextID: 1}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.ListActive(context.Background())
	require.NoError(t, err)

	_, err = svc.Ensure(context.Background(), Permission{
		ModuleCode: "EMPLOYEES", ModuleName: "Employees",
		PermissionTypeCode: "EXPORT", PermissionTypeName: "Export",
	})
	require.NoError(t, err)

	perms, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, perms, 2, "new entry is visible after invalidation")
	assert.Equal(t, 2, repo.listCalls)
}

func TestEnsureRejectsEmptyCodes(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, nil)

	_, err := svc.Ensure(context.Background(), Permission{ModuleCode: "EMPLOYEES"})
	assert.Error(t, err)
}

func TestLookupAbsenceIsNotAnError(t *testing.T) {
	repo := &mockRepo{perms: []Permission{
		{ID: 1, ModuleCode: "EMPLOYEES", PermissionTypeCode: "R", Active: true},
	}}
	svc := NewService(repo, nil, nil)

	p, found, err := svc.Lookup(context.Background(), "EMPLOYEES", "R")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 1, p.ID)

	_, found, err = svc.Lookup(context.Background(), "EMPLOYEES", "FLY")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListActiveWithoutRedisHitsRepository(t *testing.T) {
	repo := &mockRepo{perms: []Permission{
		{ID: 1, ModuleCode: "EMPLOYEES", PermissionTypeCode: "R", Active: true},
	}}
	svc := NewService(repo, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := svc.ListActive(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.listCalls)
}

func TestListActiveSurvivesCorruptCache(t *testing.T) {
	repo := &mockRepo{perms: []Permission{
		{ID: 1, ModuleCode: "EMPLOYEES", PermissionTypeCode: "R", Active: true},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	svc := NewService(repo, client, nil)

	require.NoError(t, mr.Set("catalog:permissions:active", "{not json"))

	perms, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, perms, 1)
	assert.Equal(t, 1, repo.listCalls)
}

func TestSeedFillsCatalogGrid(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, nil, nil)

	require.NoError(t, Seed(context.Background(), svc))

	// 7 modules x CRUD plus the custom codes.
	assert.Len(t, repo.perms, 7*4+4)

	_, found, err := svc.Lookup(context.Background(), "ASSESSMENTS", "NOTIFY")
	require.NoError(t, err)
	assert.True(t, found)
}
