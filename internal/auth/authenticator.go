package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fitcoach/access/internal/rbac"
)

// Authenticator resolves the principal of a request from an identity provider and a role
// store. Session resolution always precedes the role lookup.
type Authenticator struct {
	identities IdentityProvider
	roles      RoleStore
	logger     *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(identities IdentityProvider, roles RoleStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{identities: identities, roles: roles, logger: logger}
}

// Authenticate implements rbac.Authenticator.
func (a *Authenticator) Authenticate(r *http.Request) (rbac.Principal, error) {
	ctx := r.Context()
	identity, err := a.identities.ResolveSession(ctx, r)
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: resolve session: %w", rbac.ErrAuthenticationFailed, err)
	}
	if identity == nil || identity.ID == "" {
		return rbac.Principal{}, rbac.ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: %w", rbac.ErrAuthenticationFailed, err)
	}

	name, found, err := a.roles.ActiveRoleAssignment(ctx, identity.ID)
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: role lookup: %w", rbac.ErrAuthenticationFailed, err)
	}
	role := rbac.RoleGuest
	if found {
		parsed, ok := rbac.ParseRole(name)
		if !ok {
			a.logger.Warn("unknown role assignment",
				slog.String("identity", identity.ID),
				slog.String("role", name))
		}
		role = parsed
	}
	return rbac.Principal{IdentityID: identity.ID, Email: identity.Email, Role: role}, nil
}

var _ rbac.Authenticator = (*Authenticator)(nil)
