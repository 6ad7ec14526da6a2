package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitcoach/access/internal/platform/httpx"
)

// PermissionsHandler exposes the registry and the caller's own grants.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers registry routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.rbac.RequireAuthenticated(h.me))
	r.Get("/roles", h.rbac.RequirePermission(PermViewBasicContent, h.listRoles))
}

// RoleView is the JSON shape of a role with its metadata and grants.
type RoleView struct {
	Name        string       `json:"name"`
	Level       int          `json:"level"`
	Metadata    RoleMetadata `json:"metadata"`
	Permissions []Permission `json:"permissions"`
}

// PrincipalView is the JSON shape of /me. Clients cache it for page guards.
type PrincipalView struct {
	Principal
	Level       int          `json:"level"`
	Metadata    RoleMetadata `json:"metadata"`
	Permissions []Permission `json:"permissions"`
}

// ViewOf describes role for API consumers.
func ViewOf(role Role) RoleView {
	role = normalize(role)
	return RoleView{
		Name:        role.String(),
		Level:       role.Level(),
		Metadata:    Metadata(role),
		Permissions: PermissionsFor(role),
	}
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request, p Principal) {
	httpx.OK(w, PrincipalView{
		Principal:   p,
		Level:       p.Role.Level(),
		Metadata:    Metadata(p.Role),
		Permissions: PermissionsFor(p.Role),
	})
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request, _ Principal) {
	roles := Roles()
	views := make([]RoleView, len(roles))
	for i, role := range roles {
		views[i] = ViewOf(role)
	}
	httpx.Success(w, http.StatusOK, views, map[string]any{"permissions": Permissions()})
}
