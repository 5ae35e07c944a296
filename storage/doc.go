// Package storage provides interfaces and entities for client, grant, and token persistence.
//
// The storage package defines the core storage interfaces used throughout the engine:
//   - ClientStore: Manages registered OAuth clients
//   - GrantStore: Manages authorization grants between the authorize and token steps,
//     including the atomic single-winner ConsumeGrant operation
//   - TokenStore: Manages issued access and refresh tokens
//
// Store composes all three; the engine depends on Store and never touches a backend
// directly. Backends may additionally implement the optional capability interfaces
// (RefreshTokenConsumer, FamilyRevoker, PairSaver, UserClientRevoker); the engine
// discovers these by type assertion and degrades gracefully when a backend lacks one.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage
