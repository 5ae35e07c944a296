package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-engine/instrumentation"
	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
)

// tokenLogPrefixLen is the number of characters to include when logging token
// values. This provides enough uniqueness for debugging while keeping logs
// secure.
const tokenLogPrefixLen = 8

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	grants        map[string]*storage.AuthorizationGrant
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCount       atomic.Int64
	grantsCount        atomic.Int64
	accessTokensCount  atomic.Int64
	refreshTokensCount atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	nowFunc         func() time.Time
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.Store                = (*Store)(nil)
	_ storage.RefreshTokenConsumer = (*Store)(nil)
	_ storage.FamilyRevoker        = (*Store)(nil)
	_ storage.PairSaver            = (*Store)(nil)
	_ storage.UserClientRevoker    = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, the default of 1 minute is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		grants:          make(map[string]*storage.AuthorizationGrant),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		nowFunc:         time.Now,
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock overrides the time source used for expiry checks. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFunc = now
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.clientsCount.Store(int64(len(s.clients)))
	s.grantsCount.Store(int64(len(s.grants)))
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	s.mu.Unlock()

	if inst != nil {
		// Storage size callbacks use the atomic counters so metric collection
		// never takes the store lock.
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCount.Load() },
			func() int64 { return s.grantsCount.Load() },
			func() int64 { return s.accessTokensCount.Load() },
			func() int64 { return s.refreshTokensCount.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *Store) now() time.Time {
	return s.nowFunc()
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a client record, replacing any existing record with the same ID.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("invalid client")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ID]

	stored := *client
	s.clients[client.ID] = &stored

	if !existed {
		s.clientsCount.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ID)
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	clientCopy := *client
	return &clientCopy, nil
}

// DeleteClient removes a client record.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}

	delete(s.clients, clientID)
	s.clientsCount.Add(-1)

	s.logger.Debug("Deleted client", "client_id", clientID)
	return nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// SaveGrant saves an issued authorization grant.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.AuthorizationGrant) error {
	ctx, span := s.startStorageSpan(ctx, "save_grant")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_grant", err, startTime)
	}()

	if grant == nil || grant.Code == "" {
		err = fmt.Errorf("invalid authorization grant")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.grants[grant.Code]

	stored := *grant
	s.grants[grant.Code] = &stored

	if !existed {
		s.grantsCount.Add(1)
	}

	s.logger.Debug("Saved authorization grant",
		"code_prefix", util.SafeTruncate(grant.Code, tokenLogPrefixLen))
	return nil
}

// GetGrant retrieves a grant by its code without consuming it. The grant is
// kept marked as consumed after exchange so replay attempts can be detected;
// expired grants are removed by the background cleanup goroutine.
func (s *Store) GetGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[code]
	if !ok {
		return nil, storage.ErrGrantNotFound
	}

	if security.IsExpired(grant.ExpiresAt, s.now()) {
		return nil, fmt.Errorf("%w: grant expired", storage.ErrGrantNotFound)
	}

	grantCopy := *grant
	return &grantCopy, nil
}

// ConsumeGrant atomically checks that a grant is unconsumed and marks it consumed.
//
// SECURITY: This operation is atomic. Only ONE concurrent caller can succeed;
// all others receive ErrGrantConsumed together with the stored grant so that
// replay can be detected and acted on.
func (s *Store) ConsumeGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_grant")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_grant", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic check-and-set
	defer s.mu.Unlock()

	grant, ok := s.grants[code]
	if !ok {
		err = storage.ErrGrantNotFound
		return nil, err
	}

	if security.IsExpired(grant.ExpiresAt, s.now()) {
		err = fmt.Errorf("%w: grant expired", storage.ErrGrantNotFound)
		return nil, err
	}

	// ATOMIC check-and-set: only one caller can pass this check.
	if grant.Consumed {
		// Return the grant so the caller has the subject and client for
		// replay handling.
		grantCopy := *grant
		err = storage.ErrGrantConsumed
		return &grantCopy, err
	}

	grant.Consumed = true
	s.logger.Debug("Consumed authorization grant",
		"code_prefix", util.SafeTruncate(code, tokenLogPrefixLen))

	grantCopy := *grant
	return &grantCopy, nil
}

// DeleteGrant removes a grant.
func (s *Store) DeleteGrant(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[code]; ok {
		delete(s.grants, code)
		s.grantsCount.Add(-1)
	}

	s.logger.Debug("Deleted authorization grant")
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken saves an access token record.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveAccessTokenLocked(token)
	return nil
}

func (s *Store) saveAccessTokenLocked(token *storage.AccessToken) {
	_, existed := s.accessTokens[token.Token]

	stored := *token
	s.accessTokens[token.Token] = &stored

	if !existed {
		s.accessTokensCount.Add(1)
	}

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenLogPrefixLen),
		"client_id", token.ClientID)
}

// GetAccessToken retrieves an access token record by value.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.accessTokens[token]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if security.IsExpired(record.ExpiresAt, s.now()) {
		err = fmt.Errorf("%w: access token", storage.ErrTokenExpired)
		return nil, err
	}

	recordCopy := *record
	return &recordCopy, nil
}

// RevokeAccessToken marks an access token as revoked. Revoking an already
// revoked token is a no-op.
func (s *Store) RevokeAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.accessTokens[token]
	if !ok {
		return storage.ErrTokenNotFound
	}

	record.Revoked = true
	s.logger.Debug("Revoked access token",
		"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen))
	return nil
}

// SaveRefreshToken saves a refresh token record.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveRefreshTokenLocked(token)
	return nil
}

func (s *Store) saveRefreshTokenLocked(token *storage.RefreshToken) {
	_, existed := s.refreshTokens[token.Token]

	stored := *token
	s.refreshTokens[token.Token] = &stored

	if !existed {
		s.refreshTokensCount.Add(1)
	}

	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(token.Token, tokenLogPrefixLen),
		"family_id", util.SafeTruncate(token.FamilyID, tokenLogPrefixLen),
		"generation", token.Generation)
}

// GetRefreshToken retrieves a refresh token record by value.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.refreshTokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	if security.IsExpired(record.ExpiresAt, s.now()) {
		return nil, fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)
	}

	recordCopy := *record
	return &recordCopy, nil
}

// RevokeRefreshToken marks a refresh token as revoked. Revoking an already
// revoked token is a no-op.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.refreshTokens[token]
	if !ok {
		return storage.ErrTokenNotFound
	}

	record.Revoked = true
	s.logger.Debug("Revoked refresh token",
		"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen))
	return nil
}

// ============================================================
// Optional Capabilities
// ============================================================

// ConsumeRefreshToken atomically checks that a refresh token is valid and
// marks it revoked so it cannot be used again. The record is kept so a second
// presentation of the same token can be recognized as reuse.
//
// SECURITY: This operation is atomic. Only ONE concurrent caller can succeed;
// all others receive ErrTokenRevoked together with the stored record so the
// token family can be revoked.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_refresh_token", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic check-and-set
	defer s.mu.Unlock()

	record, ok := s.refreshTokens[token]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if security.IsExpired(record.ExpiresAt, s.now()) {
		err = fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)
		return nil, err
	}

	// ATOMIC check-and-set: only one caller can pass this check.
	if record.Revoked {
		recordCopy := *record
		err = storage.ErrTokenRevoked
		return &recordCopy, err
	}

	record.Revoked = true
	s.logger.Debug("Consumed refresh token for rotation",
		"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen),
		"family_id", util.SafeTruncate(record.FamilyID, tokenLogPrefixLen),
		"generation", record.Generation)

	recordCopy := *record
	return &recordCopy, nil
}

// RevokeTokenFamily revokes every refresh token in a family along with the
// access tokens paired to them. Called when refresh token reuse is detected.
func (s *Store) RevokeTokenFamily(ctx context.Context, familyID string) (int, error) {
	if familyID == "" {
		return 0, fmt.Errorf("family ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, record := range s.refreshTokens {
		if record.FamilyID != familyID {
			continue
		}
		if !record.Revoked {
			record.Revoked = true
			revoked++
		}
		if access, ok := s.accessTokens[record.AccessToken]; ok && !access.Revoked {
			access.Revoked = true
			revoked++
		}
	}

	if revoked > 0 {
		s.logger.Warn("Revoked refresh token family due to reuse detection",
			"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen),
			"tokens_revoked", revoked)
	}

	return revoked, nil
}

// SaveTokenPair saves an access token and its paired refresh token atomically.
func (s *Store) SaveTokenPair(ctx context.Context, access *storage.AccessToken, refresh *storage.RefreshToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_token_pair")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_token_pair", err, startTime)
	}()

	if access == nil || access.Token == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}
	if refresh == nil || refresh.Token == "" {
		err = fmt.Errorf("invalid refresh token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveAccessTokenLocked(access)
	s.saveRefreshTokenLocked(refresh)
	return nil
}

// RevokeUserClientTokens revokes all access and refresh tokens issued to the
// given subject and client combination. Called when authorization code replay
// is detected.
func (s *Store) RevokeUserClientTokens(ctx context.Context, subject, clientID string) (int, error) {
	if subject == "" || clientID == "" {
		return 0, fmt.Errorf("subject and clientID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, record := range s.accessTokens {
		if record.Subject == subject && record.ClientID == clientID && !record.Revoked {
			record.Revoked = true
			revoked++
		}
	}
	for _, record := range s.refreshTokens {
		if record.Subject == subject && record.ClientID == clientID && !record.Revoked {
			record.Revoked = true
			revoked++
		}
	}

	if revoked > 0 {
		s.logger.Warn("Revoked all tokens for subject and client",
			"client_id", clientID,
			"tokens_revoked", revoked,
			"reason", "authorization_code_replay_detected")
	}

	return revoked, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0

	// Consumed grants are kept until expiry so replay attempts remain
	// detectable, then removed here.
	for code, grant := range s.grants {
		if security.IsExpired(grant.ExpiresAt, now) {
			delete(s.grants, code)
			s.grantsCount.Add(-1)
			cleaned++
		}
	}

	for value, record := range s.accessTokens {
		if security.IsExpired(record.ExpiresAt, now) {
			delete(s.accessTokens, value)
			s.accessTokensCount.Add(-1)
			cleaned++
		}
	}

	for value, record := range s.refreshTokens {
		if security.IsExpired(record.ExpiresAt, now) {
			delete(s.refreshTokens, value)
			s.refreshTokensCount.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation.
// Returns a context with the span attached and the span itself.
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
