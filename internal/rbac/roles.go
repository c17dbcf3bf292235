package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleMember      = "member"
	RoleModerator   = "moderator"
	RoleSupport     = "support"
	RoleSuperAdmin  = "super_admin"
	RoleTrustSafety = "trust_safety" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleTrustSafety }
