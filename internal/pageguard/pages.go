package pageguard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
)

// Page is a UI route and the requirement it is shown under.
type Page struct {
	Path        string           `json:"path"`
	Title       string           `json:"title"`
	Requirement rbac.Requirement `json:"-"`
}

// Pages lists the application pages.
func Pages() []Page {
	return []Page{
		{Path: "/app", Title: "Home", Requirement: rbac.Authenticated()},
		{Path: "/app/dashboard", Title: "Dashboard", Requirement: rbac.NeedMinimumRole(rbac.RoleMember)},
		{Path: "/app/workouts", Title: "Workouts", Requirement: rbac.NeedPermission(rbac.PermCreateCustomWorkouts)},
		{Path: "/app/progress", Title: "Progress", Requirement: rbac.NeedPermission(rbac.PermTrackProgress)},
		{Path: "/app/community", Title: "Community", Requirement: rbac.NeedPermission(rbac.PermPostInCommunity)},
		{Path: "/app/collaborator", Title: "Collaborator tools", Requirement: rbac.NeedRoleIn(rbac.RoleCollaborator, rbac.RoleTeam, rbac.RoleAdmin)},
		{Path: "/app/team", Title: "Team", Requirement: rbac.NeedMinimumRole(rbac.RoleTeam)},
		{Path: "/app/admin", Title: "Admin panel", Requirement: rbac.NeedPermission(rbac.PermAccessAdminPanel)},
	}
}

// MountRoutes registers every page behind its requirement. Pages answer with the navigation
// the snapshot may see; rendering is left to the front end.
func (g *Guard) MountRoutes(r chi.Router) {
	pages := Pages()
	for _, page := range pages {
		page := page
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.OK(w, map[string]any{
				"page":       page,
				"navigation": g.Visible(g.Read(r), pages),
			})
		})
		r.With(g.Require(page.Requirement)).Get(trimApp(page.Path), handler)
	}
}

func trimApp(path string) string {
	if path == "/app" {
		return "/"
	}
	return path[len("/app"):]
}
