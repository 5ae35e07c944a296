package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-engine/instrumentation"
	"github.com/giantswarm/oauth2-engine/scope"
	"github.com/giantswarm/oauth2-engine/storage"
	"github.com/giantswarm/oauth2-engine/token"
)

// issuance describes one token issuance a grant machine hands to the minting
// core after validation.
type issuance struct {
	client      *storage.Client
	grantType   string
	subject     string // empty for client_credentials
	scope       scope.Set
	withRefresh bool
	familyID    string // non-empty continues an existing rotation family
	generation  int    // meaningful only with familyID; new families start at 1
}

// issueTokens mints and persists the tokens for a validated grant and builds
// the wire response. An access and refresh pair is persisted in one atomic
// step; a store that cannot do that fails the request rather than persist
// half a pair.
func (e *Engine) issueTokens(ctx context.Context, iss issuance) (*TokenResponse, error) {
	now := e.now()
	grantedScope := iss.scope.String()

	record, minted, err := e.mintAccessToken(iss.client, iss.subject, grantedScope, now)
	if err != nil {
		e.logger.Error("Failed to mint access token", "error", err)
		return nil, ErrServerError("failed to mint access token")
	}

	resp := &TokenResponse{
		AccessToken: minted,
		TokenType:   BearerTokenType,
		ExpiresIn:   e.config.AccessTokenTTL,
		Scope:       grantedScope,
	}

	if !iss.withRefresh {
		if e.trackAccessToken() {
			if err := e.store.SaveAccessToken(ctx, record); err != nil {
				e.logger.Error("Failed to save access token", "error", err)
				return nil, ErrStorageError("failed to persist access token")
			}
		}
		e.metrics.RecordTokenIssued(ctx, iss.grantType)
		instrumentation.AddOAuthFlowAttributes(trace.SpanFromContext(ctx), iss.client.ID, iss.subject, grantedScope)
		return resp, nil
	}

	refresh := e.newRefreshToken(iss, record.Token, now)
	record.RefreshToken = refresh.Token
	resp.RefreshToken = refresh.Token

	if !e.trackAccessToken() {
		// Only the refresh token gets a record; the JWT carries its own
		// state.
		if err := e.store.SaveRefreshToken(ctx, refresh); err != nil {
			e.logger.Error("Failed to save refresh token", "error", err)
			return nil, ErrStorageError("failed to persist refresh token")
		}
	} else if err := e.saveTokenPair(ctx, record, refresh); err != nil {
		e.logger.Error("Failed to save token pair", "error", err)
		return nil, ErrStorageError("failed to persist tokens")
	}

	e.metrics.RecordTokenIssued(ctx, iss.grantType)
	instrumentation.AddOAuthFlowAttributes(trace.SpanFromContext(ctx), iss.client.ID, iss.subject, grantedScope)
	return resp, nil
}

// mintAccessToken builds the access token record and its wire value. For the
// JWT format the record is keyed by the token ID (jti) so revocation and
// introspection work on the stored record while the wire value stays
// self-contained.
func (e *Engine) mintAccessToken(client *storage.Client, subject, grantedScope string, now time.Time) (*storage.AccessToken, string, error) {
	claims := token.Claims{
		ID:        uuid.NewString(),
		Issuer:    e.config.JWT.Issuer,
		Subject:   subject,
		ClientID:  client.ID,
		Audience:  e.config.JWT.Audience,
		Scope:     grantedScope,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(e.config.AccessTokenTTL) * time.Second),
	}

	minted, err := e.codec.Mint(claims)
	if err != nil {
		return nil, "", err
	}

	record := &storage.AccessToken{
		Token:     minted,
		ClientID:  client.ID,
		Subject:   subject,
		Scope:     grantedScope,
		IssuedAt:  now,
		ExpiresAt: claims.ExpiresAt,
	}
	if e.config.TokenFormat == TokenFormatJWT {
		record.Token = claims.ID
	}

	return record, minted, nil
}

// newRefreshToken builds an opaque refresh token record paired with the
// given access token. Refresh tokens are opaque regardless of the access
// token format.
func (e *Engine) newRefreshToken(iss issuance, accessToken string, now time.Time) *storage.RefreshToken {
	familyID := iss.familyID
	generation := iss.generation
	if familyID == "" {
		familyID = uuid.NewString()
		generation = 1
	}

	return &storage.RefreshToken{
		Token:       token.NewOpaque(),
		ClientID:    iss.client.ID,
		Subject:     iss.subject,
		Scope:       iss.scope.String(),
		AccessToken: accessToken,
		FamilyID:    familyID,
		Generation:  generation,
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Duration(e.config.RefreshTokenTTL) * time.Second),
	}
}

// trackAccessToken reports whether access tokens get a storage record.
// Opaque tokens always do; JWTs do unless jti tracking is disabled.
func (e *Engine) trackAccessToken() bool {
	return e.config.TokenFormat != TokenFormatJWT || !e.config.DisableJTITracking
}

// saveTokenPair persists an access and refresh token atomically. Stores
// without the capability fail closed; a half-persisted pair must never
// exist.
func (e *Engine) saveTokenPair(ctx context.Context, access *storage.AccessToken, refresh *storage.RefreshToken) error {
	saver, ok := e.store.(storage.PairSaver)
	if !ok {
		return fmt.Errorf("storage backend does not support atomic token pair persistence")
	}
	return saver.SaveTokenPair(ctx, access, refresh)
}
