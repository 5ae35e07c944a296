package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace applied to expiry checks at
	// validation boundaries. It absorbs NTP drift between cooperating systems
	// at the cost of honoring a token up to this long past its expiry. Reduce
	// it for high-security deployments.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired checks expiry against now with the default grace period.
func IsExpired(expiresAt, now time.Time) bool {
	return IsExpiredWithSkew(expiresAt, now, DefaultClockSkewGracePeriod)
}

// IsExpiredWithSkew checks expiry against now with a custom grace period.
// A zero expiresAt means no expiration. The caller supplies now so a single
// clock source governs every comparison in a request.
func IsExpiredWithSkew(expiresAt, now time.Time, grace time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(grace))
}

// ExpiresWithin reports whether expiresAt falls inside the next threshold
// from now. Zero expiresAt never expires.
func ExpiresWithin(expiresAt, now time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.Add(threshold).After(expiresAt)
}
