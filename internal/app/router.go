package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fitcoach/access/internal/auth"
	"github.com/fitcoach/access/internal/observability"
	"github.com/fitcoach/access/internal/pageguard"
	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
	"github.com/fitcoach/access/internal/roles"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	RolesHandler       *roles.Handler
	PageGuard          *pageguard.Guard
	RBACMiddleware     rbac.Middleware
	Metrics            *observability.Metrics
	HealthChecks       map[string]HealthCheck
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			params.PermissionsHandler.MountRoutes(r)
		}
		if params.RolesHandler != nil {
			r.Route("/admin/identities", params.RolesHandler.MountRoutes)
			r.Route("/analytics", params.RolesHandler.MountAnalytics)
		}
		r.Route("/collaborator", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RoleIn(rbac.RoleCollaborator, rbac.RoleTeam, rbac.RoleAdmin))
			r.Get("/tools", collaboratorTools)
		})
	})

	if params.PageGuard != nil {
		r.Route("/app", params.PageGuard.MountRoutes)
	}

	return r
}

// collaboratorTools lists what the caller can do beyond the member baseline.
func collaboratorTools(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	tools := make([]rbac.Permission, 0)
	for _, perm := range rbac.PermissionsFor(p.Role) {
		if !rbac.HasPermission(rbac.RoleMember, perm) {
			tools = append(tools, perm)
		}
	}
	httpx.OK(w, map[string]any{"role": p.Role, "tools": tools})
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failing := make(map[string]string)
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				failing[name] = err.Error()
			}
		}
		if len(failing) > 0 {
			httpx.Error(w, http.StatusServiceUnavailable, httpx.CodeUnavailable, "dependency unavailable", failing)
			return
		}
		httpx.OK(w, map[string]string{"status": "ok"})
	}
}
