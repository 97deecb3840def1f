package auth

import "errors"

// Shared error taxonomy. Every authorization-bearing operation across the
// service resolves to one of these sentinels; the HTTP layer maps them to
// status codes in exactly one place.
var (
	// ErrUnauthorized: missing, invalid, expired or stale-epoch token, or
	// bad login credentials. The caller must re-authenticate.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrForbidden: valid identity, insufficient privilege for the resource.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrNotFound: the resource does not exist.
	ErrNotFound = errors.New("auth: not found")

	// ErrInvalidInput: malformed input, cross-tenant mismatch, or a missing
	// required tenant. Surfaced with the violated precondition.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrConflict: unique-constraint violation (username, email, org name).
	ErrConflict = errors.New("auth: already exists")

	// ErrInactive: the account exists, the credentials are right, but the
	// active flag is off.
	ErrInactive = errors.New("auth: inactive account")
)
