// Package token mints and verifies the credential strings the engine issues.
//
// Two interchangeable access-token strategies are provided. OpaqueCodec
// issues cryptographically random bearer strings whose meaning lives entirely
// server-side; validation is a storage lookup. JWTCodec issues signed
// self-contained tokens carrying the claims from RFC 9068; validation is a
// signature and registered-claims check, with revocation supported through a
// storage record keyed by the token's unique id.
//
// Refresh tokens and authorization codes are always opaque regardless of the
// access-token strategy; NewOpaque generates them.
//
// The package never stores anything itself.
package token
