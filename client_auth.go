package oauth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
)

// authenticateClient resolves and authenticates the client behind a token
// request (RFC 6749 Section 2.3). Confidential clients prove possession of
// their secret against the stored bcrypt hash; public clients authenticate
// by identifier alone and must not present a secret.
//
// SECURITY: unknown client, missing secret and wrong secret all produce the
// same generic invalid_client error so callers cannot probe which part
// failed. The specifics go to the audit log only.
func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClient("client authentication required")
	}

	client, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			e.auditor.LogAuthFailure(clientID, "unknown_client")
			e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
			return nil, ErrInvalidClient("client authentication failed")
		}
		e.logger.Error("Client lookup failed", "client_id", clientID, "error", err)
		return nil, ErrStorageError("client lookup failed")
	}

	if client.IsPublic() {
		if clientSecret != "" {
			// A public client presenting a secret is misconfigured at best
			// and impersonating a confidential client at worst.
			e.auditor.LogAuthFailure(clientID, "public_client_sent_secret")
			e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
			return nil, ErrInvalidClient("public clients must not send a client secret")
		}
		return client, nil
	}

	if clientSecret == "" {
		e.auditor.LogAuthFailure(clientID, "missing_client_secret")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidClient("client authentication failed")
	}

	if err := bcrypt.CompareHashAndPassword(client.SecretHash, []byte(clientSecret)); err != nil {
		e.auditor.LogAuthFailure(clientID, "invalid_client_secret")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidClient("client authentication failed")
	}

	return client, nil
}

// clientAllowsGrantType reports whether the client registration permits the
// grant type. The refresh_token grant is implicitly permitted for clients
// registered for a grant that issues refresh tokens.
func clientAllowsGrantType(client *storage.Client, grantType string) bool {
	if client.HasGrantType(grantType) {
		return true
	}
	if grantType == GrantTypeRefreshToken {
		return client.HasGrantType(GrantTypeAuthorizationCode) || client.HasGrantType(GrantTypePassword)
	}
	return false
}
