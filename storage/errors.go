package storage

import "errors"

// Sentinel errors returned by store implementations. Callers match with
// errors.Is so implementations may wrap them with detail.
var (
	// ErrAuthorizationCodeNotFound is returned when a code does not exist,
	// has expired, or has already been consumed. The three cases are
	// deliberately indistinguishable to callers.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound is returned when no token with the given value exists
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when a token exists but is past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrClientNotFound is returned when no client with the given ID exists
	ErrClientNotFound = errors.New("client not found")

	// ErrSessionNotFound is returned when no session with the given ID exists
	ErrSessionNotFound = errors.New("session not found")
)
