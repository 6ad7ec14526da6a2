// Package pageguard gates UI pages on the principal snapshot the browser caches from /api/me.
// It only decides what to render and where to send the user. Every privileged API route keeps
// its own rbac guard, so a stale or forged snapshot never grants anything server side.
package pageguard

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
)

// DefaultCookie carries the encoded snapshot.
const DefaultCookie = "fc_principal"

// Snapshot is the client-cached view of the signed-in principal.
type Snapshot struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email,omitempty"`
	Role       rbac.Role `json:"role"`
}

// Decision is the outcome of evaluating a page requirement.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Guard evaluates page requirements with the shared rbac utilities.
type Guard struct {
	LoginPath  string
	CookieName string
	Dashboards map[rbac.Role]string
	Logger     *slog.Logger
}

// DefaultDashboards are the landing pages per role.
func DefaultDashboards() map[rbac.Role]string {
	return map[rbac.Role]string{
		rbac.RoleGuest:        "/app",
		rbac.RoleMember:       "/app/dashboard",
		rbac.RoleCollaborator: "/app/collaborator",
		rbac.RoleTeam:         "/app/team",
		rbac.RoleAdmin:        "/app/admin",
	}
}

// New builds a Guard with the default cookie and dashboards.
func New(loginPath string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		LoginPath:  loginPath,
		CookieName: DefaultCookie,
		Dashboards: DefaultDashboards(),
		Logger:     logger,
	}
}

// Decide evaluates req against snap. A nil snapshot means nobody is signed in.
func (g *Guard) Decide(snap *Snapshot, req rbac.Requirement) Decision {
	if snap == nil || snap.IdentityID == "" {
		return Decision{Redirect: g.LoginPath}
	}
	if req.Allows(snap.Role) {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: g.Dashboard(snap.Role)}
}

// Dashboard returns the landing page for role. Unknown roles land on the guest dashboard.
func (g *Guard) Dashboard(role rbac.Role) string {
	if !role.Valid() {
		role = rbac.RoleGuest
	}
	if path, ok := g.Dashboards[role]; ok && path != "" {
		return path
	}
	return g.Dashboards[rbac.RoleGuest]
}

// RedirectForCode translates an API envelope error code into a page redirect. It reports false
// for codes that should be shown in place.
func (g *Guard) RedirectForCode(code string, role rbac.Role) (string, bool) {
	switch code {
	case httpx.CodeUnauthorized:
		return g.LoginPath, true
	case httpx.CodeForbidden:
		return g.Dashboard(role), true
	default:
		return "", false
	}
}

// Visible filters pages down to the ones snap may open, for navigation rendering.
func (g *Guard) Visible(snap *Snapshot, pages []Page) []Page {
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		if g.Decide(snap, p.Requirement).Allowed {
			out = append(out, p)
		}
	}
	return out
}

// Require gates a page handler. Denied requests get a 303 to the login page (with the original
// path in next) or to the role's dashboard.
func (g *Guard) Require(req rbac.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.Read(r)
			decision := g.Decide(snap, req)
			if decision.Allowed {
				p := rbac.Principal{IdentityID: snap.IdentityID, Email: snap.Email, Role: snap.Role}
				next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), p)))
				return
			}
			target := decision.Redirect
			if target == g.LoginPath {
				target = loginTarget(g.LoginPath, r.URL.RequestURI())
			} else if target == r.URL.Path {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			g.Logger.Debug("page guard redirect",
				slog.String("path", r.URL.Path),
				slog.String("requirement", req.Describe()),
				slog.String("to", target))
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

// Read decodes the snapshot cookie. Missing or malformed cookies yield nil.
func (g *Guard) Read(r *http.Request) *Snapshot {
	cookie, err := r.Cookie(g.cookieName())
	if err != nil || cookie.Value == "" {
		return nil
	}
	snap, err := Decode(cookie.Value)
	if err != nil {
		g.Logger.Debug("page guard snapshot", slog.Any("error", err))
		return nil
	}
	return snap
}

// Write stores snap in the snapshot cookie.
func (g *Guard) Write(w http.ResponseWriter, snap Snapshot, secure bool) error {
	value, err := Encode(snap)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName(),
		Value:    value,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (g *Guard) cookieName() string {
	if g.CookieName == "" {
		return DefaultCookie
	}
	return g.CookieName
}

// Encode serialises a snapshot into a cookie-safe value.
func Encode(snap Snapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a cookie value produced by Encode. Unknown role names decode to guest.
func Decode(value string) (*Snapshot, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func loginTarget(loginPath, next string) string {
	if next == "" || next == "/" {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(next)
}
