package rbac

import "fmt"

type permissionSet uint64

func setOf(perms ...Permission) permissionSet {
	var s permissionSet
	for _, p := range perms {
		s |= 1 << uint(p)
	}
	return s
}

func (s permissionSet) has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return s&(1<<uint(p)) != 0
}

// matrix is authored per role. Keep higher roles supersets of lower ones unless a
// capability is deliberately role specific; registry_test checks this.
var matrix = [roleCount]permissionSet{
	RoleGuest: setOf(
		PermViewBasicContent,
	),
	RoleMember: setOf(
		PermViewBasicContent,
		PermViewPremiumContent,
		PermCreateCustomWorkouts,
		PermTrackProgress,
		PermPostInCommunity,
		PermCommentInCommunity,
		PermViewMemberDiscounts,
		PermViewOwnAnalytics,
	),
	RoleCollaborator: setOf(
		PermViewBasicContent,
		PermViewPremiumContent,
		PermCreateCustomWorkouts,
		PermTrackProgress,
		PermPostInCommunity,
		PermCommentInCommunity,
		PermViewMemberDiscounts,
		PermViewOwnAnalytics,
		PermAccessCollaboratorTools,
		PermUploadVideos,
	),
	RoleTeam: setOf(
		PermViewBasicContent,
		PermViewPremiumContent,
		PermCreateCustomWorkouts,
		PermTrackProgress,
		PermPostInCommunity,
		PermCommentInCommunity,
		PermViewMemberDiscounts,
		PermViewOwnAnalytics,
		PermAccessCollaboratorTools,
		PermUploadVideos,
		PermManageContent,
		PermModerateCommunity,
		PermViewAllAnalytics,
	),
	RoleAdmin: setOf(
		PermViewBasicContent,
		PermViewPremiumContent,
		PermCreateCustomWorkouts,
		PermTrackProgress,
		PermPostInCommunity,
		PermCommentInCommunity,
		PermViewMemberDiscounts,
		PermViewOwnAnalytics,
		PermAccessCollaboratorTools,
		PermUploadVideos,
		PermManageContent,
		PermModerateCommunity,
		PermViewAllAnalytics,
		PermManageUsers,
		PermManageRoles,
		PermAccessAdminPanel,
	),
}

var metadata = [roleCount]RoleMetadata{
	RoleGuest: {
		Label:       "Guest",
		Description: "Visitor with access to free content",
		Color:       "gray",
	},
	RoleMember: {
		Label:       "Member",
		Description: "Subscriber with premium programs, tracking and community access",
		Color:       "blue",
	},
	RoleCollaborator: {
		Label:       "Collaborator",
		Description: "Partner coach who can publish videos and use collaborator tools",
		Color:       "purple",
	},
	RoleTeam: {
		Label:       "Team",
		Description: "Staff managing content, community and platform analytics",
		Color:       "orange",
	},
	RoleAdmin: {
		Label:       "Admin",
		Description: "Full access including users, roles and the admin panel",
		Color:       "red",
	},
}

func init() {
	if err := verifyRegistry(); err != nil {
		panic(err)
	}
}

// verifyRegistry fails when a role lacks a name, metadata or a permission row.
func verifyRegistry() error {
	for i := 0; i < roleCount; i++ {
		role := Role(i)
		if roleNames[i] == "" {
			return fmt.Errorf("rbac: role %d has no name", i)
		}
		if metadata[i].Label == "" {
			return fmt.Errorf("rbac: role %s has no metadata", role)
		}
		if matrix[i] == 0 {
			return fmt.Errorf("rbac: role %s has no permissions", role)
		}
	}
	for i := 0; i < permissionCount; i++ {
		if permissionNames[i] == "" {
			return fmt.Errorf("rbac: permission %d has no name", i)
		}
	}
	if permissionCount > 64 {
		return fmt.Errorf("rbac: permission catalog exceeds set width")
	}
	return nil
}
