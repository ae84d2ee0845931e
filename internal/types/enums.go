package types

import "fmt"

// Role is a family membership role. Roles are ordered owner > admin > member.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member status values. Removed members are deleted, so active is the only
// persisted value.
const (
	MemberStatusActive = "active"
)

// InvitationStatus is the lifecycle state of a family invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationExpired   InvitationStatus = "expired"
	InvitationCancelled InvitationStatus = "cancelled"
)

// level returns the numeric rank used for role comparison (higher = more rights)
func (r Role) level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.level() > 0
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.level() >= min.level()
}

// Outranks reports whether r ranks strictly above other.
func (r Role) Outranks(other Role) bool {
	return r.level() > other.level()
}

// ParseRole converts a stored or user-supplied string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Terminal reports whether the invitation can no longer change status.
func (s InvitationStatus) Terminal() bool {
	switch s {
	case InvitationAccepted, InvitationExpired, InvitationCancelled:
		return true
	default:
		return false
	}
}
