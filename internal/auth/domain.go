package auth

import (
	"context"
	"net/http"
	"time"
)

// Identity is what the identity provider knows about the caller.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// IdentityProvider resolves the session carried by a request. It returns (nil, nil) when
// the request has no session or the session is expired or invalid, and an error only when
// the provider itself could not be consulted.
type IdentityProvider interface {
	ResolveSession(ctx context.Context, r *http.Request) (*Identity, error)
}

// RoleStore looks up the role currently assigned to an identity. found is false when the
// identity has no active assignment.
type RoleStore interface {
	ActiveRoleAssignment(ctx context.Context, identityID string) (role string, found bool, err error)
}

// ExpiringRoleStore also reports when the active assignment lapses. until is the zero time
// for assignments without an expiry.
type ExpiringRoleStore interface {
	RoleStore
	ActiveRoleAssignmentUntil(ctx context.Context, identityID string) (role string, found bool, until time.Time, err error)
}
