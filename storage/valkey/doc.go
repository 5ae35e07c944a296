// Package valkey provides a Valkey storage backend for the OAuth2 engine.
//
// Valkey is a high-performance key-value store that is wire-compatible with
// Redis. This package implements every storage interface the engine consumes,
// making it suitable for production deployments that require:
//
//   - Distributed storage for horizontal scaling
//   - Persistence across server restarts
//   - Automatic TTL-based expiration
//   - High availability with clustering
//
// # Implemented Interfaces
//
// The Store type implements [storage.Store] (clients, grants, tokens) plus
// all optional capabilities:
//
//   - [storage.RefreshTokenConsumer]: atomic refresh token rotation
//   - [storage.FamilyRevoker]: token family revocation on reuse detection
//   - [storage.PairSaver]: atomic access/refresh pair persistence
//   - [storage.UserClientRevoker]: bulk revocation on code replay detection
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth2:") to avoid conflicts
// with other applications sharing the same Valkey instance:
//
//	{prefix}grant:{code}                 -> JSON(AuthorizationGrant)
//	{prefix}access:{token}               -> JSON(AccessToken)
//	{prefix}refresh:{token}              -> JSON(RefreshToken)
//	{prefix}client:{clientID}            -> JSON(Client)
//	{prefix}family:{familyID}            -> SET of refresh token values
//	{prefix}userclient:{subject}:{cid}   -> SET of typed token references
//
// # Atomic Operations
//
// OAuth 2.1 requires certain operations to be atomic to prevent security
// issues:
//
//   - ConsumeGrant: prevents authorization code replay attacks
//   - ConsumeRefreshToken: prevents refresh token reuse attacks
//   - SaveTokenPair: prevents partially persisted token pairs
//
// These operations use Lua scripts to ensure atomicity in Valkey, providing
// the same security guarantees as the in-memory implementation but with
// distributed storage benefits. Consumed and revoked records are kept as
// tombstones under their original TTL, so replayed codes and reused refresh
// tokens can still be traced back to a subject and client.
//
// # Expiry Handling
//
// Record TTLs carry a small slack beyond the nominal expiry so that reads
// landing inside the clock-skew grace window still resolve. The stored
// expires_at field, not the TTL, is what expiry checks compare against.
// Unlike the memory backend, grants and tokens without an expiry are
// rejected here to keep the keyspace bounded.
//
// # Configuration
//
// Basic usage:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauth2:",
//	})
//
// With TLS:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	    KeyPrefix: "oauth2:",
//	})
//
// # Subject Encryption at Rest
//
// The subject identifier is the one piece of PII in stored records. It can be
// encrypted before storing in Valkey:
//
//	key, _ := security.GenerateKey()
//	encryptor, _ := security.NewEncryptor(key)
//	store.SetEncryptor(encryptor)
//
// When enabled, subjects are encrypted with AES-256-GCM before storage and
// automatically decrypted when retrieved. The Lua scripts only touch the
// expires_at, consumed, and revoked fields, so atomic operations work
// unchanged on encrypted records. Token values appear in key names by
// construction and are not covered by record encryption.
//
// # Security Considerations
//
//   - All grants and tokens are stored with TTLs to prevent unbounded growth
//   - Lua scripts ensure atomic operations for security-critical flows
//   - TLS support enables encrypted connections to Valkey servers
//   - Optional subject encryption at rest via SetEncryptor() using AES-256-GCM
//   - Input size validation prevents DoS attacks via oversized payloads
//
// # Best Practices
//
//   - Always use TLS in production environments
//   - Set strong passwords for Valkey authentication
//   - Use dedicated Valkey instances or databases for OAuth storage
//   - Monitor key count and memory usage for potential DoS attacks
package valkey
