// Package memory provides an in-memory implementation of the storage interfaces.
//
// This package implements ClientStore, GrantStore, and TokenStore using Go's
// built-in maps with mutex protection for thread safety. It is suitable for
// development, testing, and single-instance deployments where persistence is
// not required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Atomic single-winner ConsumeGrant and ConsumeRefreshToken
//   - Automatic cleanup of expired grants and tokens
//   - Configurable cleanup intervals
//   - All optional capability interfaces (family revocation, pair saves,
//     bulk revocation by subject and client)
//
// For production deployments requiring persistence or multi-instance
// deployments, use the storage/valkey package instead.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	engine, _ := oauth.New(store, config, logger)
package memory
