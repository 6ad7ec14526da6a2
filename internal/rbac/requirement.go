package rbac

import (
	"fmt"
	"strings"
)

// Requirement is a pure predicate over a principal's role. The HTTP guards and the page
// guard evaluate the same requirements so both sides agree on every decision.
type Requirement struct {
	kind       requirementKind
	permission Permission
	roles      []Role
	minimum    Role
}

type requirementKind int

const (
	kindAuthenticated requirementKind = iota
	kindPermission
	kindRoleIn
	kindMinimumRole
)

// Authenticated is satisfied by any resolved principal.
func Authenticated() Requirement {
	return Requirement{kind: kindAuthenticated}
}

// NeedPermission is satisfied when the role is granted p. It panics on a permission outside
// the catalog: requirements are built while wiring routes.
func NeedPermission(p Permission) Requirement {
	if !p.Valid() {
		panic(fmt.Sprintf("rbac: unknown permission %d", int(p)))
	}
	return Requirement{kind: kindPermission, permission: p}
}

// NeedRoleIn is satisfied when the role is one of roles.
func NeedRoleIn(roles ...Role) Requirement {
	allowed := make([]Role, len(roles))
	for i, r := range roles {
		allowed[i] = mustValid(r)
	}
	return Requirement{kind: kindRoleIn, roles: allowed}
}

// NeedMinimumRole is satisfied when the role is at least minimum.
func NeedMinimumRole(minimum Role) Requirement {
	return Requirement{kind: kindMinimumRole, minimum: mustValid(minimum)}
}

// Allows evaluates the requirement against role.
func (q Requirement) Allows(role Role) bool {
	switch q.kind {
	case kindAuthenticated:
		return true
	case kindPermission:
		return HasPermission(role, q.permission)
	case kindRoleIn:
		role = normalize(role)
		for _, r := range q.roles {
			if r == role {
				return true
			}
		}
		return false
	case kindMinimumRole:
		return IsRoleAtLeast(role, q.minimum)
	default:
		return false
	}
}

// Name labels the requirement kind for logs and metrics.
func (q Requirement) Name() string {
	switch q.kind {
	case kindAuthenticated:
		return "authenticated"
	case kindPermission:
		return "permission"
	case kindRoleIn:
		return "role_in"
	case kindMinimumRole:
		return "minimum_role"
	default:
		return "unknown"
	}
}

// Describe returns the message sent back when the requirement is not met.
func (q Requirement) Describe() string {
	switch q.kind {
	case kindPermission:
		return "missing permission: " + q.permission.String()
	case kindRoleIn:
		return "role must be one of: " + joinRoles(q.roles)
	case kindMinimumRole:
		return "requires role " + q.minimum.String() + " or higher"
	default:
		return "authentication required"
	}
}

// Details returns structured information about what the requirement needs.
func (q Requirement) Details() map[string]any {
	switch q.kind {
	case kindPermission:
		return map[string]any{"permission": q.permission.String()}
	case kindRoleIn:
		names := make([]string, len(q.roles))
		for i, r := range q.roles {
			names[i] = r.String()
		}
		return map[string]any{"roles": names}
	case kindMinimumRole:
		return map[string]any{"minimum_role": q.minimum.String()}
	default:
		return nil
	}
}

func mustValid(r Role) Role {
	if !r.Valid() {
		panic(fmt.Sprintf("rbac: unknown role %d", int(r)))
	}
	return r
}

func joinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}
