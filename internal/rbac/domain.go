package rbac

import (
	"fmt"
	"strings"
)

// Role is a privilege level. Roles are totally ordered; the integer value is the level.
type Role int

const (
	RoleGuest Role = iota
	RoleMember
	RoleCollaborator
	RoleTeam
	RoleAdmin

	roleCount = iota
)

var roleNames = [roleCount]string{
	RoleGuest:        "guest",
	RoleMember:       "member",
	RoleCollaborator: "collaborator",
	RoleTeam:         "team",
	RoleAdmin:        "admin",
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= 0 && int(r) < roleCount
}

// Level returns the integer level of the role. Unknown values report the guest level.
func (r Role) Level() int {
	return int(normalize(r))
}

// String returns the canonical role name.
func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// MarshalText encodes the canonical name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(normalize(r).String()), nil
}

// UnmarshalText decodes a role name. Unknown names decode to RoleGuest.
func (r *Role) UnmarshalText(text []byte) error {
	*r = NormalizeRole(string(text))
	return nil
}

// Permission is an atomic capability. Permissions carry no hierarchy of their own.
type Permission int

const (
	PermViewBasicContent Permission = iota
	PermViewPremiumContent
	PermCreateCustomWorkouts
	PermTrackProgress
	PermPostInCommunity
	PermCommentInCommunity
	PermViewMemberDiscounts
	PermViewOwnAnalytics
	PermAccessCollaboratorTools
	PermUploadVideos
	PermManageContent
	PermModerateCommunity
	PermViewAllAnalytics
	PermManageUsers
	PermManageRoles
	PermAccessAdminPanel

	permissionCount = iota
)

var permissionNames = [permissionCount]string{
	PermViewBasicContent:        "view_basic_content",
	PermViewPremiumContent:      "view_premium_content",
	PermCreateCustomWorkouts:    "create_custom_workouts",
	PermTrackProgress:           "track_progress",
	PermPostInCommunity:         "post_in_community",
	PermCommentInCommunity:      "comment_in_community",
	PermViewMemberDiscounts:     "view_member_discounts",
	PermViewOwnAnalytics:        "view_own_analytics",
	PermAccessCollaboratorTools: "access_collaborator_tools",
	PermUploadVideos:            "upload_videos",
	PermManageContent:           "manage_content",
	PermModerateCommunity:       "moderate_community",
	PermViewAllAnalytics:        "view_all_analytics",
	PermManageUsers:             "manage_users",
	PermManageRoles:             "manage_roles",
	PermAccessAdminPanel:        "access_admin_panel",
}

// Valid reports whether p is part of the catalog.
func (p Permission) Valid() bool {
	return p >= 0 && int(p) < permissionCount
}

func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("permission(%d)", int(p))
	}
	return permissionNames[p]
}

// MarshalText encodes the canonical name.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("rbac: unknown permission %d", int(p))
	}
	return []byte(permissionNames[p]), nil
}

// RoleMetadata is display information for a role. It is never consulted for authorization.
type RoleMetadata struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// Principal describes the authenticated actor for a single request.
type Principal struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
}

// ParseRole resolves a canonical role name.
func ParseRole(name string) (Role, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for i, n := range roleNames {
		if n == name {
			return Role(i), true
		}
	}
	return RoleGuest, false
}

// NormalizeRole resolves a role name, mapping anything unrecognised to RoleGuest.
func NormalizeRole(name string) Role {
	role, _ := ParseRole(name)
	return role
}

// MustParseRole resolves a role name that is known at build time and panics otherwise.
func MustParseRole(name string) Role {
	role, ok := ParseRole(name)
	if !ok {
		panic(fmt.Sprintf("rbac: unknown role %q", name))
	}
	return role
}

// ParsePermission resolves a canonical permission name.
func ParsePermission(name string) (Permission, bool) {
	name = strings.TrimSpace(strings.ToLower(name))
	for i, n := range permissionNames {
		if n == name {
			return Permission(i), true
		}
	}
	return 0, false
}

func normalize(r Role) Role {
	if !r.Valid() {
		return RoleGuest
	}
	return r
}
