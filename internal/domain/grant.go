package domain

import "github.com/google/uuid"

// Role is a privileged capability within the engine.
type Role string

const (
	RoleResolver    Role = "resolver"
	RoleDistributor Role = "distributor"
)

// Grant is a capability handle minted by the engine for one role. Grants
// are compared by identity: a copy or a reconstructed value never matches.
type Grant struct {
	role  Role
	token string
}

// NewGrant mints a fresh grant for role.
func NewGrant(role Role) *Grant {
	return &Grant{role: role, token: uuid.NewString()}
}

// Role returns the role the grant was minted for.
func (g *Grant) Role() Role { return g.role }

// Token returns an opaque identifier safe to log.
func (g *Grant) Token() string { return g.token }
