package pageguard

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
)

func snapshot(role rbac.Role) *Snapshot {
	return &Snapshot{IdentityID: "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a", Email: "member@fitcoach.test", Role: role}
}

func TestDecideWithoutSnapshotRedirectsToLogin(t *testing.T) {
	g := New("/login", nil)

	d := g.Decide(nil, rbac.Authenticated())

	require.False(t, d.Allowed)
	require.Equal(t, "/login", d.Redirect)
}

func TestDecideForbiddenRedirectsToDashboard(t *testing.T) {
	g := New("/login", nil)

	d := g.Decide(snapshot(rbac.RoleMember), rbac.NeedPermission(rbac.PermAccessAdminPanel))

	require.False(t, d.Allowed)
	require.Equal(t, "/app/dashboard", d.Redirect)
}

func TestDecideMatchesServerRules(t *testing.T) {
	g := New("/login", nil)
	reqs := []rbac.Requirement{
		rbac.Authenticated(),
		rbac.NeedPermission(rbac.PermViewPremiumContent),
		rbac.NeedPermission(rbac.PermManageUsers),
		rbac.NeedRoleIn(rbac.RoleCollaborator, rbac.RoleAdmin),
		rbac.NeedMinimumRole(rbac.RoleTeam),
	}
	for _, role := range rbac.Roles() {
		for _, req := range reqs {
			require.Equal(t, req.Allows(role), g.Decide(snapshot(role), req).Allowed, "%s %s", role, req.Describe())
		}
	}
}

func TestDecideUnknownRoleFailsClosed(t *testing.T) {
	g := New("/login", nil)

	d := g.Decide(snapshot(rbac.Role(99)), rbac.NeedPermission(rbac.PermViewPremiumContent))

	require.False(t, d.Allowed)
	require.Equal(t, "/app", d.Redirect)
}

func TestRedirectForCode(t *testing.T) {
	g := New("/login", nil)

	to, ok := g.RedirectForCode(httpx.CodeUnauthorized, rbac.RoleTeam)
	require.True(t, ok)
	require.Equal(t, "/login", to)

	to, ok = g.RedirectForCode(httpx.CodeForbidden, rbac.RoleTeam)
	require.True(t, ok)
	require.Equal(t, "/app/team", to)

	_, ok = g.RedirectForCode(httpx.CodeValidationFailed, rbac.RoleTeam)
	require.False(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	value, err := Encode(*snapshot(rbac.RoleCollaborator))
	require.NoError(t, err)

	got, err := Decode(value)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleCollaborator, got.Role)

	_, err = Decode("%%%")
	require.Error(t, err)
}

func TestDecodeUnknownRoleIsGuest(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"identity_id": "abc", "role": "superuser"})
	require.NoError(t, err)

	got, err := Decode(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, rbac.RoleGuest, got.Role)
}

func newPageRouter(g *Guard) http.Handler {
	r := chi.NewRouter()
	r.Route("/app", g.MountRoutes)
	return r
}

func get(t *testing.T, h http.Handler, path string, snap *Snapshot) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if snap != nil {
		value, err := Encode(*snap)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: DefaultCookie, Value: value})
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPageRequiresSnapshot(t *testing.T) {
	router := newPageRouter(New("/login", nil))

	rr := get(t, router, "/app/team", nil)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/login?next=%2Fapp%2Fteam", rr.Header().Get("Location"))
}

func TestPageRedirectsToDashboard(t *testing.T) {
	router := newPageRouter(New("/login", nil))

	rr := get(t, router, "/app/admin", snapshot(rbac.RoleCollaborator))

	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/app/collaborator", rr.Header().Get("Location"))
}

func TestPageAllowedListsNavigation(t *testing.T) {
	router := newPageRouter(New("/login", nil))

	rr := get(t, router, "/app/team", snapshot(rbac.RoleTeam))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"/app/team"`)
	require.NotContains(t, rr.Body.String(), `"/app/admin"`)
}

func TestEveryDashboardIsReachableByItsRole(t *testing.T) {
	g := New("/login", nil)
	router := newPageRouter(g)

	for _, role := range rbac.Roles() {
		rr := get(t, router, g.Dashboard(role), snapshot(role))
		require.Equal(t, http.StatusOK, rr.Code, role.String())
	}
}

func TestVisibleForGuest(t *testing.T) {
	g := New("/login", nil)

	pages := g.Visible(snapshot(rbac.RoleGuest), Pages())

	require.Len(t, pages, 1)
	require.Equal(t, "/app", pages[0].Path)
}

func TestWriteThenRead(t *testing.T) {
	g := New("/login", nil)
	rr := httptest.NewRecorder()
	require.NoError(t, g.Write(rr, *snapshot(rbac.RoleTeam), true))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.True(t, cookies[0].Secure)

	req := httptest.NewRequest(http.MethodGet, "/app/team", nil)
	req.AddCookie(cookies[0])
	got := g.Read(req)
	require.NotNil(t, got)
	require.Equal(t, rbac.RoleTeam, got.Role)
}

func TestReadIgnoresGarbage(t *testing.T) {
	g := New("/login", nil)
	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookie, Value: "bm90LWpzb24"})

	require.Nil(t, g.Read(req))
}
