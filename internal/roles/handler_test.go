package roles

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
)

// headerAuthenticator reads the caller role from X-Test-Role.
func headerAuthenticator(r *http.Request) (rbac.Principal, error) {
	role := rbac.NormalizeRole(r.Header.Get("X-Test-Role"))
	id := r.Header.Get("X-Test-Identity")
	if id == "" {
		id = adminID
	}
	return rbac.Principal{IdentityID: id, Role: role}, nil
}

func newRolesRouter(t *testing.T) (http.Handler, *memoryRepo, *recordingInvalidator) {
	t.Helper()
	svc, repo, cache := newTestService()
	mw := rbac.Middleware{Authenticator: rbac.AuthenticatorFunc(headerAuthenticator)}
	r := chi.NewRouter()
	h := NewHandler(nil, svc, mw)
	r.Route("/api/admin/identities", h.MountRoutes)
	r.Route("/api/analytics", h.MountAnalytics)
	return r, repo, cache
}

func do(t *testing.T, h http.Handler, method, path, role, body string) (*httptest.ResponseRecorder, httpx.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Test-Role", role)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return rr, env
}

func TestGetRoleDefaultsToGuest(t *testing.T) {
	router, _, _ := newRolesRouter(t)

	rr, env := do(t, router, http.MethodGet, "/api/admin/identities/"+memberID+"/role", "admin", "")

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
	require.Contains(t, rr.Body.String(), `"name":"guest"`)
	require.NotContains(t, rr.Body.String(), `"assignment"`)
}

func TestGetRoleRequiresManageUsers(t *testing.T) {
	router, _, _ := newRolesRouter(t)

	rr, env := do(t, router, http.MethodGet, "/api/admin/identities/"+memberID+"/role", "team", "")

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, httpx.CodeForbidden, env.Error.Code)
	require.Contains(t, env.Error.Message, "manage_users")
}

func TestGetRoleRejectsMalformedIdentity(t *testing.T) {
	router, _, _ := newRolesRouter(t)

	rr, env := do(t, router, http.MethodGet, "/api/admin/identities/not-a-uuid/role", "admin", "")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, httpx.CodeValidationFailed, env.Error.Code)
}

func TestPutRoleAssigns(t *testing.T) {
	router, repo, cache := newRolesRouter(t)

	rr, env := do(t, router, http.MethodPut, "/api/admin/identities/"+memberID+"/role", "admin", `{"role":"Collaborator"}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, env.Success)
	require.Contains(t, rr.Body.String(), `"name":"collaborator"`)
	require.Equal(t, []string{memberID}, cache.ids)
	current, ok := repo.assignments[memberID]
	require.True(t, ok)
	require.Equal(t, rbac.RoleCollaborator, current.Role)
}

func TestPutRoleValidatesBody(t *testing.T) {
	router, _, _ := newRolesRouter(t)

	cases := []string{
		`{"role":"superuser"}`,
		`{}`,
		`{"role":"member","extra":true}`,
		`not json`,
	}
	for _, body := range cases {
		rr, env := do(t, router, http.MethodPut, "/api/admin/identities/"+memberID+"/role", "admin", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Equal(t, httpx.CodeValidationFailed, env.Error.Code, body)
	}
}

func TestPutRoleRejectsPastExpiry(t *testing.T) {
	router, _, _ := newRolesRouter(t)

	rr, env := do(t, router, http.MethodPut, "/api/admin/identities/"+memberID+"/role", "admin",
		`{"role":"member","expires_at":"2020-01-01T00:00:00Z"}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, httpx.CodeValidationFailed, env.Error.Code)
}

func TestPutRoleForbiddenForMember(t *testing.T) {
	router, _, cache := newRolesRouter(t)

	rr, env := do(t, router, http.MethodPut, "/api/admin/identities/"+teamID+"/role", "member", `{"role":"admin"}`)

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, env.Error.Message, "manage_roles")
	require.Empty(t, cache.ids)
}

func TestPutRoleRejectsSelfAssignment(t *testing.T) {
	router, _, _ := newRolesRouter(t)

	rr, env := do(t, router, http.MethodPut, "/api/admin/identities/"+adminID+"/role", "admin", `{"role":"member"}`)

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, httpx.CodeForbidden, env.Error.Code)
}

func TestDeleteRole(t *testing.T) {
	router, repo, _ := newRolesRouter(t)
	repo.seed(memberID, rbac.RoleMember)

	rr, _ := do(t, router, http.MethodDelete, "/api/admin/identities/"+memberID+"/role", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr, env := do(t, router, http.MethodDelete, "/api/admin/identities/"+memberID+"/role", "admin", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, httpx.CodeNotFound, env.Error.Code)
}

func TestOverviewRequiresTeam(t *testing.T) {
	router, repo, _ := newRolesRouter(t)
	repo.seed(memberID, rbac.RoleMember)

	rr, env := do(t, router, http.MethodGet, "/api/analytics/overview", "collaborator", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, env.Error.Message, "team")

	rr, env = do(t, router, http.MethodGet, "/api/analytics/overview", "team", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, env.Success)
	require.Contains(t, rr.Body.String(), `"assigned_identities":1`)
}
