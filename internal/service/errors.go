package service

import (
	"errors"
)

// Sentinel kinds. Every *Error unwraps to exactly one of them, so callers can
// use errors.Is(err, ErrForbidden) regardless of the message.
var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
)

// Error is a domain error with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validationError(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }
func forbidden(msg string) error       { return &Error{Kind: ErrForbidden, Message: msg} }
func notFound(msg string) error        { return &Error{Kind: ErrNotFound, Message: msg} }
func conflict(msg string) error        { return &Error{Kind: ErrConflict, Message: msg} }

// Message returns the caller-facing message of a domain error, or "" when
// err is not one.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// Messages shared between services and their tests.
const (
	msgNotMember          = "not a member"
	msgInsufficientRole   = "insufficient role"
	msgAlreadyInFamily    = "already in a family"
	msgFamilyNotFound     = "family not found"
	msgNameRequired       = "name is required"
	msgOnlyOwnerDeletes   = "only the owner may delete the family"
	msgMemberNotFound     = "member not found"
	msgCannotRemoveOwner  = "cannot remove owner"
	msgOnlyOwnerRemoves   = "only owner may remove admin"
	msgOwnerCannotLeave   = "owner cannot leave"
	msgNoFamily           = "not in a family"
	msgInvalidRole        = "role must be admin or member"
	msgOnlyOwnerSetsRoles = "only owner may change roles"
	msgCannotChangeOwner  = "cannot change owner role"
	msgEmailRequired      = "email is required"
	msgAlreadyMember      = "already a member"
	msgInvitationExists   = "invitation already exists"
	msgInvitationGone     = "invitation not found or used"
	msgInvitationExpired  = "invitation expired"
	msgEmailMismatch      = "email mismatch"
	msgTokenRequired      = "token is required"
)

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err, kind error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
