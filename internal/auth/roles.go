package auth

import (
	"fmt"
	"strings"
)

// Role is the access tier of an identity. SuperAdmin outranks OrgAdmin,
// which outranks both StaffUser and IndividualUser; the latter two are
// incomparable: staff are always scoped to an organization, individuals
// never belong to one.
type Role string

const (
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleOrgAdmin       Role = "ORG_ADMIN"
	RoleStaffUser      Role = "STAFF_USER"
	RoleIndividualUser Role = "INDIVIDUAL_USER"
)

// ParseRole validates and normalizes a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin, nil
	case RoleOrgAdmin:
		return RoleOrgAdmin, nil
	case RoleStaffUser:
		return RoleStaffUser, nil
	case RoleIndividualUser:
		return RoleIndividualUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// Valid reports whether r is one of the four defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrgAdmin, RoleStaffUser, RoleIndividualUser:
		return true
	}
	return false
}

// Admin reports whether r carries organization- or platform-level
// management privileges.
func (r Role) Admin() bool {
	return r == RoleSuperAdmin || r == RoleOrgAdmin
}

// RequiresOrganization reports whether an identity with this role must
// carry an organization reference.
func (r Role) RequiresOrganization() bool {
	return r == RoleOrgAdmin || r == RoleStaffUser
}

// Organizationless reports whether an identity with this role must not
// carry an organization reference.
func (r Role) Organizationless() bool {
	return r == RoleSuperAdmin || r == RoleIndividualUser
}

func (r Role) String() string { return string(r) }
