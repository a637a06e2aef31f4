package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrForbidden marks a policy denial for a caller whose credential is
	// valid. Cross-tenant lookups surface as ErrNotFound instead, so this
	// never leaks resource existence.
	ErrForbidden = errors.New("auth: forbidden")
)

// ErrInvalidToken indicates the bearer credential failed validation.
var ErrInvalidToken = errors.New("invalid token")
