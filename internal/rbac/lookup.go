package rbac

// HasPermission reports whether role is granted perm. Unknown roles are evaluated as RoleGuest.
func HasPermission(role Role, perm Permission) bool {
	return matrix[normalize(role)].has(perm)
}

// IsRoleAtLeast reports whether role sits at or above minimum in the hierarchy.
func IsRoleAtLeast(role, minimum Role) bool {
	return normalize(role) >= normalize(minimum)
}

// Metadata returns the display metadata for role.
func Metadata(role Role) RoleMetadata {
	return metadata[normalize(role)]
}

// Roles returns every role ordered from least to most privileged.
func Roles() []Role {
	roles := make([]Role, roleCount)
	for i := range roles {
		roles[i] = Role(i)
	}
	return roles
}

// Permissions returns the permission catalog in declaration order.
func Permissions() []Permission {
	perms := make([]Permission, permissionCount)
	for i := range perms {
		perms[i] = Permission(i)
	}
	return perms
}

// PermissionsFor lists the permissions granted to role in catalog order.
func PermissionsFor(role Role) []Permission {
	set := matrix[normalize(role)]
	perms := make([]Permission, 0, permissionCount)
	for i := 0; i < permissionCount; i++ {
		if set.has(Permission(i)) {
			perms = append(perms, Permission(i))
		}
	}
	return perms
}

// CanAssignRole reports whether actor may grant target to someone else. Granting requires
// manage_roles and is capped at the actor's own level.
func CanAssignRole(actor, target Role) bool {
	if !target.Valid() {
		return false
	}
	return HasPermission(actor, PermManageRoles) && IsRoleAtLeast(actor, target)
}
