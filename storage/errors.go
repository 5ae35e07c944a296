package storage

import "errors"

// Sentinel errors returned by storage implementations. Backends return these
// exact values (or wrap them) so callers can match with errors.Is.
var (
	// ErrClientNotFound indicates no client record exists for the given ID.
	ErrClientNotFound = errors.New("client not found")

	// ErrGrantNotFound indicates no authorization grant exists for the given
	// code, or the grant has expired.
	ErrGrantNotFound = errors.New("authorization grant not found")

	// ErrGrantConsumed is returned by ConsumeGrant when the grant was already
	// consumed. The consumed grant is returned alongside the error so callers
	// can react to replay.
	ErrGrantConsumed = errors.New("authorization grant already consumed")

	// ErrTokenNotFound indicates no token record exists for the given value.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates a token record exists but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates a token record exists but has been revoked.
	// ConsumeRefreshToken returns it together with the stored record when a
	// rotated-out token is presented again.
	ErrTokenRevoked = errors.New("token revoked")
)
