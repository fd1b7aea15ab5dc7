package domain

// Role is the access level of an authenticated caller
type Role string

const (
	// RoleSearcher may only query the index
	RoleSearcher Role = "searcher"
	// RoleOperator may also drive the crawl dashboard
	RoleOperator Role = "operator"
)

// AuthContext contains the authenticated caller for request context.
// Principal is what query-time permission filtering checks against.
type AuthContext struct {
	Principal Principal `json:"principal"`
	Role      Role      `json:"role"`
}

// IsOperator checks if the caller may mutate crawl state
func (a *AuthContext) IsOperator() bool {
	return a != nil && a.Role == RoleOperator
}

// TokenClaims represents the bearer token payload issued by the identity provider
type TokenClaims struct {
	Subject   string   `json:"sub"`
	Groups    []string `json:"groups,omitempty"`
	Role      Role     `json:"role,omitempty"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}
