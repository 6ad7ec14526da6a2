package roles

import (
	"fmt"
	"time"

	"github.com/fitcoach/access/internal/platform/httpx"
	"github.com/fitcoach/access/internal/rbac"
)

// Assignment is an active role assignment for an identity.
type Assignment struct {
	ID         int64      `json:"id"`
	IdentityID string     `json:"identity_id"`
	Role       rbac.Role  `json:"role"`
	Priority   int        `json:"priority"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// AssignParams describes a new assignment.
type AssignParams struct {
	IdentityID string
	Role       rbac.Role
	Priority   int
	AssignedBy string
	ExpiresAt  *time.Time
	Check      ReachCheck
}

// ReachCheck vets the assignment an identity holds before it is replaced or revoked. current
// is nil when there is none. Repositories run it inside the write transaction, against the
// row they are about to change.
type ReachCheck func(current *Assignment) error

// RoleCount is the number of identities holding a role.
type RoleCount struct {
	Role       rbac.Role `json:"role"`
	Identities int       `json:"identities"`
}

var (
	// ErrNotFound indicates the identity has no active assignment.
	ErrNotFound = fmt.Errorf("roles: %w", httpx.ErrNotFound)
	// ErrEscalation indicates an attempt to grant or revoke above the actor's own level.
	ErrEscalation = fmt.Errorf("%w: role change exceeds your own role", httpx.ErrForbidden)
	// ErrSelfAssignment indicates an actor changing their own assignment.
	ErrSelfAssignment = fmt.Errorf("%w: cannot change your own role", httpx.ErrForbidden)
	// ErrInvalidExpiry indicates an expiry that is not in the future.
	ErrInvalidExpiry = fmt.Errorf("%w: expires_at must be in the future", httpx.ErrValidation)
)
