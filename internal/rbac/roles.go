package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCustomer    = "customer"
	RoleMerchant    = "merchant" // store owner
	RoleAgent       = "agent"    // store staff answering calls
	RoleFinance     = "finance"
	RoleSuperAdmin  = "super_admin"
	RoleTrustSafety = "trust_safety" // hidden role
)

// CallRoles may open a signaling connection and place or receive calls.
var CallRoles = []string{RoleCustomer, RoleMerchant, RoleAgent}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleTrustSafety }
