package authz

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *mockRepository) http.Handler {
	svc := NewService(repo, newMockCatalog(employeesRead()), nil, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, svc).MountRoutes(r)
	return r
}

func TestCheckEndpointReturnsDecision(t *testing.T) {
	router := newTestRouter(&mockRepository{snapshot: Snapshot{
		UserFound: true, UserActive: true, GrantingRoles: []RoleGrant{{RoleName: "HR Manager"}},
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check?userId=10&module=EMPLOYEES&permission=R", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var decision Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Granted)
	assert.Equal(t, ReasonRoleGrant, decision.Reason)
	assert.Equal(t, []string{"HR Manager"}, decision.Sources)
}

func TestCheckEndpointUnknownPermissionIsADeny(t *testing.T) {
	router := newTestRouter(&mockRepository{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check?userId=10&module=EMPLOYEES&permission=FLY", nil))

	require.Equal(t, http.StatusOK, rec.Code, "unknown permission is a deny, not an error")
	var decision Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Granted)
	assert.Equal(t, ReasonPermissionNotFound, decision.Reason)
}

func TestCheckEndpointValidation(t *testing.T) {
	router := newTestRouter(&mockRepository{})

	for _, target := range []string{
		"/check?module=EMPLOYEES&permission=R",
		"/check?userId=0&module=EMPLOYEES&permission=R",
		"/check?userId=abc&module=EMPLOYEES&permission=R",
		"/check?userId=10&permission=R",
		"/check?userId=10&module=EMPLOYEES",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}

func TestEffectivePermissionsEndpoint(t *testing.T) {
	router := newTestRouter(&mockRepository{grants: GrantsSnapshot{
		UserFound:  true,
		UserActive: true,
		RoleGrants: []RoleGrantRow{
			{ModuleCode: "EMPLOYEES", PermissionCode: "R", RoleName: "HR Manager"},
		},
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/10/permissions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		UserID      int64                 `json:"userId"`
		Permissions []EffectivePermission `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.EqualValues(t, 10, payload.UserID)
	require.Len(t, payload.Permissions, 1)
	assert.Equal(t, SourceRoleGrant, payload.Permissions[0].Source)
}
