package domain

// UserRole represents operator permission level
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleOperator UserRole = "operator"
	UserRoleViewer   UserRole = "viewer"
)

var roleRank = map[UserRole]int{
	UserRoleViewer:   1,
	UserRoleOperator: 2,
	UserRoleAdmin:    3,
}

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Allows reports whether r grants at least the required role
func (r UserRole) Allows(required UserRole) bool {
	return roleRank[r] >= roleRank[required]
}

// Principal is the authenticated caller carried by an access token
type Principal struct {
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}
