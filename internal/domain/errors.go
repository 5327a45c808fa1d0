// Package domain defines the closed set of error kinds surfaced by the
// auth and account-group services. Handlers discriminate with errors.Is and
// map each kind to a stable HTTP status and code; anything outside this set
// is treated as an internal error.
package domain

import "errors"

var (
	// ErrInvalidCredentials covers both unknown-email and wrong-password
	// logins. The message must never distinguish the two.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailExists is returned by signup when the email is already taken.
	ErrEmailExists = errors.New("email already registered")

	// ErrInvalidToken covers bad-signature, expired, and revoked tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")

	ErrAlreadyMember           = errors.New("user is already a member")
	ErrInvitationExpired       = errors.New("invitation has expired")
	ErrInvalidInvitationStatus = errors.New("invitation has already been processed")

	// ErrValidation covers malformed input and the duplicate-pending-
	// invitation case. Wrap it to attach a specific message.
	ErrValidation = errors.New("validation error")
)
