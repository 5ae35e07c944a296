package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth2:"

	// tokenLogPrefixLen is the number of characters to include when logging token values
	tokenLogPrefixLen = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxTokenLength is the maximum allowed length for token and code strings (512 bytes)
	// This prevents DoS attacks via excessively large tokens
	MaxTokenLength = 512

	// MaxIDLength is the maximum allowed length for identifiers (subject, clientID, familyID)
	MaxIDLength = 256

	// MaxRecordSize is the maximum size of a serialized record (64KB)
	// This prevents memory exhaustion from large payloads
	MaxRecordSize = 64 * 1024
)

// errInputTooLarge is generic so error messages never echo oversized input
var errInputTooLarge = fmt.Errorf("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth2:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of the engine storage interfaces.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	// encryptor provides optional subject encryption at rest
	// Access must be synchronized via encryptorMu
	encryptor   *security.Encryptor
	encryptorMu sync.RWMutex
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.Store                = (*Store)(nil)
	_ storage.RefreshTokenConsumer = (*Store)(nil)
	_ storage.FamilyRevoker        = (*Store)(nil)
	_ storage.PairSaver            = (*Store)(nil)
	_ storage.UserClientRevoker    = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetEncryptor sets the encryptor for subject encryption at rest.
// When set, the subject field of grants and tokens is encrypted before
// storing in Valkey and decrypted when retrieved.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptorMu.Lock()
	defer s.encryptorMu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Subject encryption at rest enabled for Valkey storage")
	}
}

// getEncryptor returns the current encryptor (thread-safe)
func (s *Store) getEncryptor() *security.Encryptor {
	s.encryptorMu.RLock()
	defer s.encryptorMu.RUnlock()
	return s.encryptor
}

// encryptSubject encrypts a subject value when an encryptor is configured.
// Returns the value unchanged when encryption is disabled or the subject
// is empty.
func (s *Store) encryptSubject(subject string) (string, error) {
	enc := s.getEncryptor()
	if enc == nil || !enc.IsEnabled() || subject == "" {
		return subject, nil
	}
	val, err := enc.Encrypt(subject)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt subject: %w", err)
	}
	return val, nil
}

// decryptSubject reverses encryptSubject.
func (s *Store) decryptSubject(subject string) (string, error) {
	enc := s.getEncryptor()
	if enc == nil || !enc.IsEnabled() || subject == "" {
		return subject, nil
	}
	val, err := enc.Decrypt(subject)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt subject: %w", err)
	}
	return val, nil
}

// validateStringLength checks if a string exceeds the maximum allowed length
func validateStringLength(value string, maxLen int, fieldName string) error {
	if len(value) > maxLen {
		return fmt.Errorf("%s exceeds maximum length of %d bytes", fieldName, maxLen)
	}
	return nil
}

// ============================================================
// Key Helpers
// ============================================================

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// grantKey returns the key for an authorization grant: {prefix}grant:{code}
func (s *Store) grantKey(code string) string {
	return fmt.Sprintf("%sgrant:%s", s.prefix, code)
}

// accessTokenKey returns the key for an access token: {prefix}access:{token}
func (s *Store) accessTokenKey(token string) string {
	return fmt.Sprintf("%saccess:%s", s.prefix, token)
}

// refreshTokenKey returns the key for a refresh token: {prefix}refresh:{token}
func (s *Store) refreshTokenKey(token string) string {
	return fmt.Sprintf("%srefresh:%s", s.prefix, token)
}

// familyKey returns the key for a token family: {prefix}family:{familyID}
func (s *Store) familyKey(familyID string) string {
	return fmt.Sprintf("%sfamily:%s", s.prefix, familyID)
}

// userClientKey returns the key for subject+client token tracking:
// {prefix}userclient:{subject}:{clientID}
func (s *Store) userClientKey(subject, clientID string) string {
	return fmt.Sprintf("%suserclient:%s:%s", s.prefix, subject, clientID)
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================
//
// These Lua scripts provide atomic operations for security-critical OAuth
// flows. Using Lua scripts ensures atomicity in Valkey/Redis, preventing race
// conditions that could lead to code replay or token reuse attacks. The
// scripts only read and write the expires_at, consumed, and revoked fields,
// so they work unchanged when the subject field holds an encrypted value.

// luaConsumeGrant atomically checks that an authorization grant is unconsumed
// and marks it consumed.
//
// Security: This operation MUST be atomic - only ONE concurrent request can
// succeed. Every concurrent attempt on the same code receives the
// ALREADY_CONSUMED result, which is how code replay is detected.
//
// The consumed record keeps its TTL (KEEPTTL), so replayed codes can still be
// traced back to a subject and client until the grant expires naturally.
//
// KEYS[1] = grant key (e.g., "oauth2:grant:abc123")
// ARGV[1] = current Unix timestamp in seconds, pre-adjusted for clock skew
//
// Returns:
//   - Original JSON data if the grant was unconsumed and is now marked consumed
//   - "NOT_FOUND" if the key doesn't exist in Valkey
//   - "EXPIRED" if the grant has expired (ARGV[1] > grant.expires_at)
//   - "ALREADY_CONSUMED:<json>" if the grant was consumed before (data returned for replay handling)
const luaConsumeGrant = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local grant = cjson.decode(data)

-- Check if expired
local now = tonumber(ARGV[1])
local expiresAt = tonumber(grant.expires_at)
if expiresAt and now > expiresAt then
    return 'EXPIRED'
end

-- Check if already consumed
if grant.consumed then
    return 'ALREADY_CONSUMED:' .. data
end

-- Mark as consumed and save
grant.consumed = true
redis.call('SET', KEYS[1], cjson.encode(grant), 'KEEPTTL')

return data
`

// luaConsumeRefreshToken atomically checks that a refresh token is live and
// marks it revoked, implementing the OAuth 2.1 requirement for refresh token
// rotation with reuse detection.
//
// Security: This operation MUST be atomic - only ONE concurrent request can
// succeed. The record is kept as a revoked tombstone rather than deleted, so
// a reused token still resolves to its family for family-wide revocation.
//
// KEYS[1] = refresh token key (e.g., "oauth2:refresh:xyz789")
// ARGV[1] = current Unix timestamp in seconds, pre-adjusted for clock skew
//
// Returns:
//   - Original JSON data if the token was live and is now marked revoked
//   - "NOT_FOUND" if the key doesn't exist in Valkey
//   - "EXPIRED" if the token has expired (ARGV[1] > token.expires_at)
//   - "ALREADY_USED:<json>" if the token was revoked before (data returned for reuse handling)
const luaConsumeRefreshToken = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local token = cjson.decode(data)

-- Check if expired
local now = tonumber(ARGV[1])
local expiresAt = tonumber(token.expires_at)
if expiresAt and now > expiresAt then
    return 'EXPIRED'
end

-- Check if already rotated out
if token.revoked then
    return 'ALREADY_USED:' .. data
end

-- Mark as revoked and save
token.revoked = true
redis.call('SET', KEYS[1], cjson.encode(token), 'KEEPTTL')

return data
`

// luaMarkRevoked flips the revoked flag on a token record while keeping its
// TTL, so the tombstone stays visible to reuse detection until the record
// expires naturally.
//
// KEYS[1] = token record key
//
// Returns:
//   - "OK" if the record was newly revoked
//   - "ALREADY_REVOKED" if the record was revoked before
//   - "NOT_FOUND" if the key doesn't exist in Valkey
const luaMarkRevoked = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local record = cjson.decode(data)
if record.revoked then
    return 'ALREADY_REVOKED'
end

record.revoked = true
redis.call('SET', KEYS[1], cjson.encode(record), 'KEEPTTL')

return 'OK'
`

// luaSaveTokenPair writes an access token record and its paired refresh token
// record in one atomic step. A crash between two separate SETs could
// otherwise leave a refresh token referencing an access token that was never
// stored.
//
// KEYS[1] = access token key
// KEYS[2] = refresh token key
// ARGV[1] = access token record JSON
// ARGV[2] = refresh token record JSON
// ARGV[3] = access token TTL in seconds
// ARGV[4] = refresh token TTL in seconds
//
// Returns "OK".
const luaSaveTokenPair = `
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[4])
return 'OK'
`

// ============================================================
// Shared Helpers
// ============================================================

// getAndUnmarshal fetches a key and unmarshals it through the given JSON
// representation. Returns notFoundErr on a nil reply.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	notFoundErr error,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// isNilError checks if the error is a Valkey nil reply (key not found)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// calculateTTL converts an absolute expiry into a Valkey TTL. The clock-skew
// grace is added so records stay resolvable for reads landing inside the
// grace window; expiry checks compare against the stored expires_at field,
// not the TTL.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + security.DefaultClockSkewGracePeriod
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// graceAdjustedUnix returns the timestamp the Lua scripts compare against
// expires_at. Shifting now backward by the grace makes the comparison
// equivalent to security.IsExpired.
func graceAdjustedUnix(now time.Time) int64 {
	return now.Add(-security.DefaultClockSkewGracePeriod).Unix()
}
