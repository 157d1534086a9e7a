// Package identity resolves authenticated callers to their workflow role.
//
// Roles form a flat set. There is no hierarchy here: "supervisor counts as
// professional" style shortcuts live in each operation's explicit allow set
// in the report domain, so that a transition's authorization is
// self-contained and auditable.
package identity

import (
	"fmt"
)

// Role is a caller's workflow role.
type Role string

const (
	RolePatient      Role = "PATIENT"
	RoleProfessional Role = "PROFESSIONAL"
	RoleSupervisor   Role = "SUPERVISOR"
	RoleAdmin        Role = "ADMIN"
)

var validRoles = map[Role]bool{
	RolePatient:      true,
	RoleProfessional: true,
	RoleSupervisor:   true,
	RoleAdmin:        true,
}

// IsValid reports whether r is a defined role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role string
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
