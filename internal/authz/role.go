// Package authz decides what an authenticated principal may see and do.
// Roles are three independent capability profiles, not a privilege ladder:
// a manager's wider visibility does not imply every narrower capability.
package authz

import (
	"fmt"
	"strings"
)

// Role determines visibility and mutation scope.
type Role string

const (
	RoleSalesRep Role = "sales_rep"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSalesRep:
		return RoleSalesRep, nil
	case RoleManager:
		return RoleManager, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Valid reports whether the role is one of the three known profiles.
func (r Role) Valid() bool {
	switch r {
	case RoleSalesRep, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Principal is an authenticated actor. It is re-derived from a verified
// token on every request and never cached across requests.
type Principal struct {
	ID        string
	Role      Role
	ManagerID string // set for reps that report to a manager
	Disabled  bool
}
