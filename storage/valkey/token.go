package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
)

// accessTokenJSON is the JSON representation of an access token record. The
// expires_at and revoked fields are read and written by the Lua scripts and
// must keep these names.
type accessTokenJSON struct {
	Token        string `json:"token"`
	ClientID     string `json:"client_id"`
	Subject      string `json:"subject,omitempty"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IssuedAt     int64  `json:"issued_at"`
	ExpiresAt    int64  `json:"expires_at"`
	Revoked      bool   `json:"revoked"`
}

func toAccessTokenJSON(token *storage.AccessToken) *accessTokenJSON {
	j := &accessTokenJSON{
		Token:        token.Token,
		ClientID:     token.ClientID,
		Subject:      token.Subject,
		Scope:        token.Scope,
		RefreshToken: token.RefreshToken,
		Revoked:      token.Revoked,
	}
	if !token.IssuedAt.IsZero() {
		j.IssuedAt = token.IssuedAt.Unix()
	}
	if !token.ExpiresAt.IsZero() {
		j.ExpiresAt = token.ExpiresAt.Unix()
	}
	return j
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	if j == nil {
		return nil
	}
	token := &storage.AccessToken{
		Token:        j.Token,
		ClientID:     j.ClientID,
		Subject:      j.Subject,
		Scope:        j.Scope,
		RefreshToken: j.RefreshToken,
		Revoked:      j.Revoked,
	}
	if j.IssuedAt != 0 {
		token.IssuedAt = time.Unix(j.IssuedAt, 0)
	}
	if j.ExpiresAt != 0 {
		token.ExpiresAt = time.Unix(j.ExpiresAt, 0)
	}
	return token
}

// refreshTokenJSON is the JSON representation of a refresh token record.
type refreshTokenJSON struct {
	Token       string `json:"token"`
	ClientID    string `json:"client_id"`
	Subject     string `json:"subject,omitempty"`
	Scope       string `json:"scope,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	FamilyID    string `json:"family_id,omitempty"`
	Generation  int    `json:"generation,omitempty"`
	IssuedAt    int64  `json:"issued_at"`
	ExpiresAt   int64  `json:"expires_at"`
	Revoked     bool   `json:"revoked"`
}

func toRefreshTokenJSON(token *storage.RefreshToken) *refreshTokenJSON {
	j := &refreshTokenJSON{
		Token:       token.Token,
		ClientID:    token.ClientID,
		Subject:     token.Subject,
		Scope:       token.Scope,
		AccessToken: token.AccessToken,
		FamilyID:    token.FamilyID,
		Generation:  token.Generation,
		Revoked:     token.Revoked,
	}
	if !token.IssuedAt.IsZero() {
		j.IssuedAt = token.IssuedAt.Unix()
	}
	if !token.ExpiresAt.IsZero() {
		j.ExpiresAt = token.ExpiresAt.Unix()
	}
	return j
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	if j == nil {
		return nil
	}
	token := &storage.RefreshToken{
		Token:       j.Token,
		ClientID:    j.ClientID,
		Subject:     j.Subject,
		Scope:       j.Scope,
		AccessToken: j.AccessToken,
		FamilyID:    j.FamilyID,
		Generation:  j.Generation,
		Revoked:     j.Revoked,
	}
	if j.IssuedAt != 0 {
		token.IssuedAt = time.Unix(j.IssuedAt, 0)
	}
	if j.ExpiresAt != 0 {
		token.ExpiresAt = time.Unix(j.ExpiresAt, 0)
	}
	return token
}

// decodeAccessToken unmarshals a stored access token record and decrypts its
// subject.
func (s *Store) decodeAccessToken(data []byte) (*storage.AccessToken, error) {
	var j accessTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", err)
	}
	token := fromAccessTokenJSON(&j)

	subject, err := s.decryptSubject(token.Subject)
	if err != nil {
		return nil, err
	}
	token.Subject = subject
	return token, nil
}

// decodeRefreshToken unmarshals a stored refresh token record and decrypts
// its subject.
func (s *Store) decodeRefreshToken(data []byte) (*storage.RefreshToken, error) {
	var j refreshTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	token := fromRefreshTokenJSON(&j)

	subject, err := s.decryptSubject(token.Subject)
	if err != nil {
		return nil, err
	}
	token.Subject = subject
	return token, nil
}

// encodeAccessToken validates and serializes an access token record,
// returning the payload and its TTL.
func (s *Store) encodeAccessToken(token *storage.AccessToken) ([]byte, time.Duration, error) {
	if token == nil {
		return nil, 0, fmt.Errorf("access token cannot be nil")
	}
	if token.Token == "" {
		return nil, 0, fmt.Errorf("access token value cannot be empty")
	}
	if err := validateStringLength(token.Token, MaxTokenLength, "token"); err != nil {
		return nil, 0, err
	}
	if err := validateStringLength(token.ClientID, MaxIDLength, "client ID"); err != nil {
		return nil, 0, err
	}
	if err := validateStringLength(token.Subject, MaxIDLength, "subject"); err != nil {
		return nil, 0, err
	}
	if token.ExpiresAt.IsZero() {
		return nil, 0, fmt.Errorf("access token requires an expiry")
	}
	if security.IsExpired(token.ExpiresAt, time.Now()) {
		return nil, 0, fmt.Errorf("access token is already expired")
	}

	j := toAccessTokenJSON(token)
	subject, err := s.encryptSubject(j.Subject)
	if err != nil {
		return nil, 0, err
	}
	j.Subject = subject

	data, err := json.Marshal(j)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal access token: %w", err)
	}
	if len(data) > MaxRecordSize {
		return nil, 0, errInputTooLarge
	}

	return data, calculateTTL(token.ExpiresAt), nil
}

// encodeRefreshToken validates and serializes a refresh token record,
// returning the payload and its TTL.
func (s *Store) encodeRefreshToken(token *storage.RefreshToken) ([]byte, time.Duration, error) {
	if token == nil {
		return nil, 0, fmt.Errorf("refresh token cannot be nil")
	}
	if token.Token == "" {
		return nil, 0, fmt.Errorf("refresh token value cannot be empty")
	}
	if err := validateStringLength(token.Token, MaxTokenLength, "token"); err != nil {
		return nil, 0, err
	}
	if err := validateStringLength(token.ClientID, MaxIDLength, "client ID"); err != nil {
		return nil, 0, err
	}
	if err := validateStringLength(token.Subject, MaxIDLength, "subject"); err != nil {
		return nil, 0, err
	}
	if err := validateStringLength(token.FamilyID, MaxIDLength, "family ID"); err != nil {
		return nil, 0, err
	}
	if token.ExpiresAt.IsZero() {
		return nil, 0, fmt.Errorf("refresh token requires an expiry")
	}
	if security.IsExpired(token.ExpiresAt, time.Now()) {
		return nil, 0, fmt.Errorf("refresh token is already expired")
	}

	j := toRefreshTokenJSON(token)
	subject, err := s.encryptSubject(j.Subject)
	if err != nil {
		return nil, 0, err
	}
	j.Subject = subject

	data, err := json.Marshal(j)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal refresh token: %w", err)
	}
	if len(data) > MaxRecordSize {
		return nil, 0, errInputTooLarge
	}

	return data, calculateTTL(token.ExpiresAt), nil
}

// SaveAccessToken saves an access token record with a TTL derived from its
// expiry and indexes it for subject+client revocation.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	data, ttl, err := s.encodeAccessToken(token)
	if err != nil {
		return err
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().
			Key(s.accessTokenKey(token.Token)).
			Value(string(data)).
			Ex(ttl).
			Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	s.indexAccessToken(ctx, token, ttl)

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenLogPrefixLen),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken retrieves an access token record by value. Revoked records
// are returned with Revoked set.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	if err := validateStringLength(token, MaxTokenLength, "token"); err != nil {
		return nil, err
	}

	data, err := s.client.Do(ctx,
		s.client.B().Get().Key(s.accessTokenKey(token)).Build(),
	).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	record, err := s.decodeAccessToken([]byte(data))
	if err != nil {
		return nil, err
	}

	// The TTL normally reaps expired tokens; double-check the stored expiry.
	if security.IsExpired(record.ExpiresAt, time.Now()) {
		return nil, fmt.Errorf("%w: access token", storage.ErrTokenExpired)
	}

	return record, nil
}

// RevokeAccessToken marks an access token as revoked. Revoking an already
// revoked token is a no-op.
func (s *Store) RevokeAccessToken(ctx context.Context, token string) error {
	if err := validateStringLength(token, MaxTokenLength, "token"); err != nil {
		return err
	}

	if _, err := s.markRevoked(ctx, s.accessTokenKey(token), "access token"); err != nil {
		return err
	}

	s.logger.Debug("Revoked access token",
		"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen))
	return nil
}

// SaveRefreshToken saves a refresh token record with a TTL derived from its
// expiry and indexes it for family and subject+client revocation.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	data, ttl, err := s.encodeRefreshToken(token)
	if err != nil {
		return err
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().
			Key(s.refreshTokenKey(token.Token)).
			Value(string(data)).
			Ex(ttl).
			Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.indexRefreshToken(ctx, token, ttl)

	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(token.Token, tokenLogPrefixLen),
		"client_id", token.ClientID,
		"family_id", util.SafeTruncate(token.FamilyID, tokenLogPrefixLen),
		"generation", token.Generation)
	return nil
}

// GetRefreshToken retrieves a refresh token record by value. Revoked records
// are returned with Revoked set.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	if err := validateStringLength(token, MaxTokenLength, "token"); err != nil {
		return nil, err
	}

	data, err := s.client.Do(ctx,
		s.client.B().Get().Key(s.refreshTokenKey(token)).Build(),
	).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	record, err := s.decodeRefreshToken([]byte(data))
	if err != nil {
		return nil, err
	}

	if security.IsExpired(record.ExpiresAt, time.Now()) {
		return nil, fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)
	}

	return record, nil
}

// RevokeRefreshToken marks a refresh token as revoked. Revoking an already
// revoked token is a no-op.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	if err := validateStringLength(token, MaxTokenLength, "token"); err != nil {
		return err
	}

	if _, err := s.markRevoked(ctx, s.refreshTokenKey(token), "refresh token"); err != nil {
		return err
	}

	s.logger.Debug("Revoked refresh token",
		"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen))
	return nil
}

// ConsumeRefreshToken atomically checks that the refresh token is live and
// marks it revoked via a Lua script. Exactly one concurrent caller receives
// the record with a nil error; every other caller receives ErrTokenRevoked
// together with the stored record so reuse can be detected and the token
// family revoked.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	if err := validateStringLength(token, MaxTokenLength, "token"); err != nil {
		return nil, err
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().
			Script(luaConsumeRefreshToken).
			Numkeys(1).
			Key(s.refreshTokenKey(token)).
			Arg(fmt.Sprintf("%d", graceAdjustedUnix(time.Now()))).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrTokenNotFound

	case result == "EXPIRED":
		return nil, fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)

	case strings.HasPrefix(result, "ALREADY_USED:"):
		data := strings.TrimPrefix(result, "ALREADY_USED:")
		record, decodeErr := s.decodeRefreshToken([]byte(data))
		if decodeErr != nil {
			s.logger.Error("Failed to decode revoked refresh token during reuse handling",
				"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen),
				"error", decodeErr)
			return nil, storage.ErrTokenRevoked
		}
		return record, storage.ErrTokenRevoked

	default:
		// The script returns the pre-mark JSON on success.
		record, decodeErr := s.decodeRefreshToken([]byte(result))
		if decodeErr != nil {
			return nil, decodeErr
		}
		record.Revoked = true

		s.logger.Debug("Consumed refresh token for rotation",
			"token_prefix", util.SafeTruncate(token, tokenLogPrefixLen),
			"family_id", util.SafeTruncate(record.FamilyID, tokenLogPrefixLen),
			"generation", record.Generation)
		return record, nil
	}
}

// SaveTokenPair saves an access token and its paired refresh token in one
// atomic step via a Lua script, then indexes both for revocation.
func (s *Store) SaveTokenPair(ctx context.Context, access *storage.AccessToken, refresh *storage.RefreshToken) error {
	accessData, accessTTL, err := s.encodeAccessToken(access)
	if err != nil {
		return err
	}
	refreshData, refreshTTL, err := s.encodeRefreshToken(refresh)
	if err != nil {
		return err
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().
			Script(luaSaveTokenPair).
			Numkeys(2).
			Key(s.accessTokenKey(access.Token), s.refreshTokenKey(refresh.Token)).
			Arg(string(accessData), string(refreshData),
				fmt.Sprintf("%d", int64(accessTTL.Seconds())),
				fmt.Sprintf("%d", int64(refreshTTL.Seconds()))).
			Build(),
	).ToString()
	if err != nil {
		return fmt.Errorf("failed to save token pair: %w", err)
	}
	if result != "OK" {
		return fmt.Errorf("unexpected result saving token pair: %s", result)
	}

	s.indexAccessToken(ctx, access, accessTTL)
	s.indexRefreshToken(ctx, refresh, refreshTTL)

	s.logger.Debug("Saved token pair",
		"client_id", access.ClientID,
		"family_id", util.SafeTruncate(refresh.FamilyID, tokenLogPrefixLen))
	return nil
}

// markRevoked runs luaMarkRevoked against the given record key. Reports
// whether the record was newly revoked.
func (s *Store) markRevoked(ctx context.Context, key, kind string) (bool, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaMarkRevoked).Numkeys(1).Key(key).Build(),
	).ToString()
	if err != nil {
		return false, fmt.Errorf("failed to revoke %s: %w", kind, err)
	}

	switch result {
	case "NOT_FOUND":
		return false, storage.ErrTokenNotFound
	case "ALREADY_REVOKED":
		return false, nil
	case "OK":
		return true, nil
	default:
		return false, fmt.Errorf("unexpected result revoking %s: %s", kind, result)
	}
}
