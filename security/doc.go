// Package security provides the security services the engine composes in:
// audit logging, rate limiting, encryption at rest, and clock-skew handling.
//
// # Audit Logging
//
// The Auditor emits structured security events over log/slog. Resource-owner
// identifiers are SHA-256 hashed before logging so audit trails carry no PII;
// token values never appear in events.
//
// # Rate Limiting
//
// The RateLimiter provides per-identifier token-bucket limiting with LRU
// eviction so tracked state stays bounded under distributed abuse. The engine
// applies it per client id at the token endpoint when one is installed.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientID) {
//		// reject the request
//	}
//
// # Encryption at Rest
//
// The Encryptor wraps AES-256-GCM for storage backends that persist token
// records outside process memory. A nil key disables encryption and turns the
// Encryptor into a pass-through.
//
// # Clock Skew
//
// Expiry checks at validation boundaries allow a small grace period for clock
// drift between cooperating systems. Issuance never applies the grace.
package security
