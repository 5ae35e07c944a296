package oauth

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth2-engine/instrumentation"
	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
	"github.com/giantswarm/oauth2-engine/token"
)

// Introspect reports whether a token is active and, for live tokens, its
// claims (RFC 7662). Unknown, expired and revoked tokens all produce the
// same {Active: false} result so callers cannot learn anything about tokens
// they merely guessed. The hint orders the lookup; a wrong or missing hint
// falls back to the other token type. Only storage faults return an error.
func (e *Engine) Introspect(ctx context.Context, tokenValue, hint string) (*Introspection, error) {
	ctx, span := e.tracer.Start(ctx, "oauth.introspect")
	defer span.End()

	result, tokenType, err := e.introspect(ctx, tokenValue, hint)
	if err != nil {
		instrumentation.SetSpanError(span, errorCode(err))
		return nil, err
	}

	e.metrics.RecordIntrospection(ctx, tokenType, result.Active)
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func (e *Engine) introspect(ctx context.Context, tokenValue, hint string) (*Introspection, string, error) {
	if tokenValue == "" {
		return &Introspection{Active: false}, "unknown", nil
	}

	for _, tokenType := range lookupOrder(hint) {
		switch tokenType {
		case TokenTypeHintAccessToken:
			record, found, err := e.lookupAccess(ctx, tokenValue)
			if err != nil {
				e.logger.Error("Access token lookup failed", "error", err)
				return nil, "", ErrStorageError("token lookup failed")
			}
			if found {
				return e.accessIntrospection(record), tokenType, nil
			}
		case TokenTypeHintRefreshToken:
			record, found, err := e.lookupRefresh(ctx, tokenValue)
			if err != nil {
				e.logger.Error("Refresh token lookup failed", "error", err)
				return nil, "", ErrStorageError("token lookup failed")
			}
			if found {
				return e.refreshIntrospection(record), tokenType, nil
			}
		}
	}

	return &Introspection{Active: false}, "unknown", nil
}

// Revoke marks a token revoked (RFC 7009). Revoking an unknown, expired or
// already revoked token succeeds without effect; the hint orders the lookup
// with fallback to the other type. Revoking a refresh token cascades to its
// currently paired access token; revoking an access token stands alone.
func (e *Engine) Revoke(ctx context.Context, tokenValue, hint string) error {
	ctx, span := e.tracer.Start(ctx, "oauth.revoke")
	defer span.End()

	if err := e.revoke(ctx, tokenValue, hint); err != nil {
		instrumentation.SetSpanError(span, errorCode(err))
		return err
	}

	e.metrics.RecordRevocation(ctx, revocationHintLabel(hint))
	instrumentation.SetSpanSuccess(span)
	return nil
}

func revocationHintLabel(hint string) string {
	if hint == "" {
		return "none"
	}
	return hint
}

func (e *Engine) revoke(ctx context.Context, tokenValue, hint string) error {
	if tokenValue == "" {
		return nil
	}

	for _, tokenType := range lookupOrder(hint) {
		var done bool
		var err error
		switch tokenType {
		case TokenTypeHintAccessToken:
			done, err = e.revokeAccess(ctx, tokenValue)
		case TokenTypeHintRefreshToken:
			done, err = e.revokeRefresh(ctx, tokenValue)
		}
		if err != nil {
			e.logger.Error("Revocation failed", "token_type", tokenType, "error", err)
			return ErrStorageError("revocation failed")
		}
		if done {
			return nil
		}
	}

	// RFC 7009 Section 2.2: revoking a token the server does not know is
	// still a success.
	e.logger.Debug("Revocation requested for unknown token",
		"token_prefix", util.SafeTruncate(tokenValue, tokenLogPrefixLen))
	return nil
}

// revokeAccess revokes a single access token. done means the token was
// recognized, including the already-revoked case.
func (e *Engine) revokeAccess(ctx context.Context, tokenValue string) (bool, error) {
	record, found, err := e.lookupAccess(ctx, tokenValue)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if record.Revoked {
		return true, nil
	}

	if !e.trackAccessToken() {
		// No record to mark. The token stays verifiable until it expires.
		e.logger.Warn("Cannot revoke self-contained token without jti tracking",
			"client_id", record.ClientID)
		return true, nil
	}

	if err := e.store.RevokeAccessToken(ctx, record.Token); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
		return false, err
	}

	e.auditor.LogTokenRevoked(record.Subject, record.ClientID, TokenTypeHintAccessToken)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenRevoked)
	e.logger.Debug("Revoked access token",
		"client_id", record.ClientID,
		"token_prefix", util.SafeTruncate(record.Token, tokenLogPrefixLen))
	return true, nil
}

// revokeRefresh revokes a refresh token and cascades to its currently paired
// access token.
func (e *Engine) revokeRefresh(ctx context.Context, tokenValue string) (bool, error) {
	record, found, err := e.lookupRefresh(ctx, tokenValue)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if record.Revoked {
		return true, nil
	}

	if err := e.store.RevokeRefreshToken(ctx, tokenValue); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
		return false, err
	}

	if record.AccessToken != "" {
		if err := e.store.RevokeAccessToken(ctx, record.AccessToken); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			e.logger.Warn("Failed to cascade revocation to paired access token", "error", err)
		}
	}

	e.auditor.LogTokenRevoked(record.Subject, record.ClientID, TokenTypeHintRefreshToken)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenRevoked)
	e.logger.Debug("Revoked refresh token",
		"client_id", record.ClientID,
		"token_prefix", util.SafeTruncate(tokenValue, tokenLogPrefixLen))
	return true, nil
}

// VerifyAccessToken checks a bearer token on behalf of a resource server:
// codec validation for self-contained tokens, storage lookup otherwise, then
// revocation and expiry with clock-skew grace.
//
// SECURITY: every dead-token cause returns the same invalid_grant error so
// callers cannot distinguish unknown from expired from revoked.
func (e *Engine) VerifyAccessToken(ctx context.Context, tokenValue string) (*storage.AccessToken, error) {
	if tokenValue == "" {
		return nil, ErrInvalidGrant("invalid token")
	}

	record, found, err := e.lookupAccess(ctx, tokenValue)
	if err != nil {
		e.logger.Error("Access token lookup failed", "error", err)
		return nil, ErrStorageError("token lookup failed")
	}
	if !found || record.Revoked || security.IsExpiredWithSkew(record.ExpiresAt, e.now(), e.skew()) {
		return nil, ErrInvalidGrant("invalid token")
	}

	return record, nil
}

// lookupOrder returns the token types to try, hinted one first (RFC 7009
// Section 2.1).
func lookupOrder(hint string) [2]string {
	if hint == TokenTypeHintRefreshToken {
		return [2]string{TokenTypeHintRefreshToken, TokenTypeHintAccessToken}
	}
	return [2]string{TokenTypeHintAccessToken, TokenTypeHintRefreshToken}
}

// lookupAccess resolves an access token to its stored record. For the JWT
// format the wire value is decoded first and the record fetched by jti; a
// failed decode is a dead or foreign token, not a storage fault.
func (e *Engine) lookupAccess(ctx context.Context, tokenValue string) (*storage.AccessToken, bool, error) {
	key := tokenValue
	if e.config.TokenFormat == TokenFormatJWT {
		claims, err := e.codec.Decode(tokenValue)
		if err != nil {
			// Bad signature, expired, or not a JWT at all. No storage call.
			return nil, false, nil
		}
		if !e.trackAccessToken() {
			return accessRecordFromClaims(claims), true, nil
		}
		key = claims.ID
	}

	record, err := e.store.GetAccessToken(ctx, key)
	switch {
	case err == nil:
		return record, true, nil
	case errors.Is(err, storage.ErrTokenNotFound), errors.Is(err, storage.ErrTokenExpired):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// lookupRefresh resolves a refresh token to its stored record.
func (e *Engine) lookupRefresh(ctx context.Context, tokenValue string) (*storage.RefreshToken, bool, error) {
	record, err := e.store.GetRefreshToken(ctx, tokenValue)
	switch {
	case err == nil:
		return record, true, nil
	case errors.Is(err, storage.ErrTokenNotFound), errors.Is(err, storage.ErrTokenExpired):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (e *Engine) accessIntrospection(record *storage.AccessToken) *Introspection {
	if record.Revoked || security.IsExpiredWithSkew(record.ExpiresAt, e.now(), e.skew()) {
		return &Introspection{Active: false}
	}
	result := &Introspection{
		Active:    true,
		Scope:     record.Scope,
		ClientID:  record.ClientID,
		Subject:   record.Subject,
		TokenType: TokenTypeHintAccessToken,
	}
	if !record.ExpiresAt.IsZero() {
		result.ExpiresAt = record.ExpiresAt.Unix()
	}
	if !record.IssuedAt.IsZero() {
		result.IssuedAt = record.IssuedAt.Unix()
	}
	return result
}

func (e *Engine) refreshIntrospection(record *storage.RefreshToken) *Introspection {
	if record.Revoked || security.IsExpiredWithSkew(record.ExpiresAt, e.now(), e.skew()) {
		return &Introspection{Active: false}
	}
	result := &Introspection{
		Active:    true,
		Scope:     record.Scope,
		ClientID:  record.ClientID,
		Subject:   record.Subject,
		TokenType: TokenTypeHintRefreshToken,
	}
	if !record.ExpiresAt.IsZero() {
		result.ExpiresAt = record.ExpiresAt.Unix()
	}
	if !record.IssuedAt.IsZero() {
		result.IssuedAt = record.IssuedAt.Unix()
	}
	return result
}

// accessRecordFromClaims synthesizes an access token record from validated
// JWT claims. Used when jti tracking is disabled and the claims are all
// there is.
func accessRecordFromClaims(claims *token.Claims) *storage.AccessToken {
	return &storage.AccessToken{
		Token:     claims.ID,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		Scope:     claims.Scope,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}
}
