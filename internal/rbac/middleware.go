package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fitcoach/access/internal/platform/httpx"
)

var (
	// ErrNoSession reports a request without a usable session.
	ErrNoSession = errors.New("no session")
	// ErrAuthenticationFailed reports that the caller could not be resolved.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Decision outcomes reported to a DecisionRecorder.
const (
	OutcomeAllowed         = "allowed"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeForbidden       = "forbidden"
)

// Authenticator resolves the principal behind a request. Implementations return
// ErrNoSession or ErrAuthenticationFailed (possibly wrapped) when they cannot.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (Principal, error)

// Authenticate calls f(r).
func (f AuthenticatorFunc) Authenticate(r *http.Request) (Principal, error) {
	return f(r)
}

// DecisionRecorder observes guard decisions.
type DecisionRecorder interface {
	RecordDecision(guard, outcome string)
}

// HandlerFunc is a request handler that receives the authorized principal.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, p Principal)

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Authenticator Authenticator
	Logger        *slog.Logger
	Recorder      DecisionRecorder
}

// RequireAuthenticated runs next only for a resolved principal, answering 401 otherwise.
func (m Middleware) RequireAuthenticated(next HandlerFunc) http.HandlerFunc {
	return m.Require(Authenticated(), next)
}

// RequirePermission runs next only when the principal's role is granted perm.
func (m Middleware) RequirePermission(perm Permission, next HandlerFunc) http.HandlerFunc {
	return m.Require(NeedPermission(perm), next)
}

// RequireRoleIn runs next only when the principal's role is one of allowed.
func (m Middleware) RequireRoleIn(allowed []Role, next HandlerFunc) http.HandlerFunc {
	return m.Require(NeedRoleIn(allowed...), next)
}

// RequireMinimumRole runs next only when the principal's role is at least minimum.
func (m Middleware) RequireMinimumRole(minimum Role, next HandlerFunc) http.HandlerFunc {
	return m.Require(NeedMinimumRole(minimum), next)
}

// Require authenticates the request and evaluates req before calling next. The handler is
// never invoked when either step fails.
func (m Middleware) Require(req Requirement, next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authenticate(r)
		if err != nil {
			m.record(req, OutcomeUnauthenticated)
			message := ErrAuthenticationFailed.Error()
			if errors.Is(err, ErrNoSession) {
				message = ErrNoSession.Error()
			} else {
				m.logger().Warn("rbac authenticate",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
			}
			httpx.Unauthorized(w, message)
			return
		}
		if !req.Allows(principal.Role) {
			m.record(req, OutcomeForbidden)
			m.logger().Debug("rbac denied",
				slog.String("path", r.URL.Path),
				slog.String("identity", principal.IdentityID),
				slog.String("role", principal.Role.String()),
				slog.String("requirement", req.Describe()))
			httpx.Forbidden(w, req.Describe(), req.Details())
			return
		}
		m.record(req, OutcomeAllowed)
		next(w, r, principal)
	}
}

// Authenticated is the chi-style form of RequireAuthenticated. The principal is available
// downstream through PrincipalFromContext.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return m.Use(Authenticated())
}

// Permission is the chi-style form of RequirePermission.
func (m Middleware) Permission(perm Permission) func(http.Handler) http.Handler {
	return m.Use(NeedPermission(perm))
}

// RoleIn is the chi-style form of RequireRoleIn.
func (m Middleware) RoleIn(allowed ...Role) func(http.Handler) http.Handler {
	return m.Use(NeedRoleIn(allowed...))
}

// MinimumRole is the chi-style form of RequireMinimumRole.
func (m Middleware) MinimumRole(minimum Role) func(http.Handler) http.Handler {
	return m.Use(NeedMinimumRole(minimum))
}

// Use turns a requirement into router middleware.
func (m Middleware) Use(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.Require(req, func(w http.ResponseWriter, r *http.Request, p Principal) {
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func (m Middleware) authenticate(r *http.Request) (p Principal, err error) {
	if m.Authenticator == nil {
		return Principal{}, fmt.Errorf("%w: no authenticator configured", ErrAuthenticationFailed)
	}
	defer func() {
		if rec := recover(); rec != nil {
			p = Principal{}
			err = fmt.Errorf("%w: panic: %v", ErrAuthenticationFailed, rec)
		}
	}()
	p, err = m.Authenticator.Authenticate(r)
	if err != nil {
		return Principal{}, err
	}
	// A check that outlived its request is treated as failed.
	if ctxErr := r.Context().Err(); ctxErr != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, ctxErr)
	}
	if p.IdentityID == "" {
		return Principal{}, fmt.Errorf("%w: empty identity", ErrAuthenticationFailed)
	}
	p.Role = normalize(p.Role)
	return p, nil
}

func (m Middleware) record(req Requirement, outcome string) {
	if m.Recorder != nil {
		m.Recorder.RecordDecision(req.Name(), outcome)
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
