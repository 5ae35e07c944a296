package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-engine/instrumentation"
	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/scope"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
)

// Exchange processes a token-endpoint request and returns the minted tokens.
//
// The sequence is always: rate limit, client authentication, grant-type
// dispatch, grant validation, scope resolution, mint, persist. A failure
// before persistence leaves no state behind except the one-time consumption
// of the presented code or refresh token; persistence of an access and
// refresh pair is all-or-nothing.
//
// Every protocol failure is a *Error carrying the OAuth error code and an
// HTTP status, recoverable with errors.As.
func (e *Engine) Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest("token request is required")
	}

	ctx, span := e.tracer.Start(ctx, "oauth.exchange")
	defer span.End()
	instrumentation.AddGrantTypeAttributes(span, req.GrantType)

	start := time.Now()
	resp, err := e.exchange(ctx, req)
	e.metrics.RecordTokenExchange(ctx, req.GrantType, outcomeLabel(err), float64(time.Since(start).Microseconds())/1000.0)

	if err != nil {
		instrumentation.SetSpanError(span, errorCode(err))
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// outcomeLabel maps an exchange result to a bounded metric label.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return errorCode(err)
}

func (e *Engine) exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if e.rateLimiter != nil && !e.rateLimiter.Allow(req.ClientID) {
		e.metrics.RecordRateLimitExceeded(ctx, "client")
		e.auditor.LogRateLimitExceeded(req.ClientID)
		e.metrics.RecordAuditEvent(ctx, security.EventRateLimitExceeded)
		// Deliberately indistinguishable from other bad requests.
		return nil, ErrInvalidRequest("too many requests, slow down")
	}

	// SECURITY: authenticate before touching the grant so failures reveal
	// nothing about codes or tokens.
	client, err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if !e.config.grantTypeEnabled(req.GrantType) {
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("grant type %q is not enabled", req.GrantType))
	}
	if !clientAllowsGrantType(client, req.GrantType) {
		e.auditor.LogAuthFailure(client.ID, "grant_type_not_allowed")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrUnauthorizedClient(fmt.Sprintf("client is not authorized for grant type %q", req.GrantType))
	}

	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx),
		attribute.String(instrumentation.AttrClientID, client.ID),
		attribute.String(instrumentation.AttrClientType, client.Type),
	)

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return e.exchangeAuthorizationCode(ctx, client, req)
	case GrantTypeClientCredentials:
		return e.exchangeClientCredentials(ctx, client, req)
	case GrantTypeRefreshToken:
		return e.exchangeRefreshToken(ctx, client, req)
	case GrantTypePassword:
		return e.exchangePassword(ctx, client, req)
	default:
		// Enabled but not a token-endpoint grant (implicit).
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("grant type %q cannot be exchanged at the token endpoint", req.GrantType))
	}
}

// exchangeAuthorizationCode runs the authorization_code grant: consume the
// code atomically, then validate its binding to the client, the redirect URI
// and the PKCE verifier.
//
// SECURITY: the code is consumed before validation, so a request that fails
// validation still burns it. Authorization codes are strictly single-use.
func (e *Engine) exchangeAuthorizationCode(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	grant, err := e.store.ConsumeGrant(ctx, req.Code)
	switch {
	case err == nil:
		// Single winner, carry on.
	case errors.Is(err, storage.ErrGrantConsumed):
		e.handleCodeReplay(ctx, grant, client.ID, req.Code)
		return nil, ErrInvalidGrant("invalid grant")
	case errors.Is(err, storage.ErrGrantNotFound):
		e.logger.Debug("Authorization code rejected",
			"reason", err.Error(),
			"client_id", client.ID,
			"code_prefix", util.SafeTruncate(req.Code, tokenLogPrefixLen))
		e.auditor.LogAuthFailure(client.ID, "invalid_authorization_code")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	default:
		e.logger.Error("Failed to consume authorization grant", "error", err)
		return nil, ErrStorageError("grant lookup failed")
	}

	e.metrics.RecordGrantConsumed(ctx)

	if grant.ClientID != client.ID {
		e.logger.Debug("Authorization code rejected",
			"reason", "client_mismatch",
			"client_id", client.ID,
			"code_prefix", util.SafeTruncate(req.Code, tokenLogPrefixLen))
		e.auditor.LogAuthFailure(client.ID, "authorization_code_client_mismatch")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	}

	if grant.RedirectURI != req.RedirectURI {
		e.auditor.LogEvent(security.Event{
			Type:     security.EventInvalidRedirect,
			Subject:  grant.Subject,
			ClientID: client.ID,
		})
		e.metrics.RecordAuditEvent(ctx, security.EventInvalidRedirect)
		return nil, ErrInvalidRequest("redirect_uri does not match the authorization request")
	}

	if grant.CodeChallenge != "" {
		instrumentation.AddPKCEAttributes(trace.SpanFromContext(ctx), grant.CodeChallengeMethod)
	}
	if err := e.validatePKCE(grant.CodeChallenge, grant.CodeChallengeMethod, req.CodeVerifier); err != nil {
		e.metrics.RecordPKCEValidationFailed(ctx, grant.CodeChallengeMethod)
		e.auditor.LogEvent(security.Event{
			Type:     security.EventPKCEValidationFailed,
			Subject:  grant.Subject,
			ClientID: client.ID,
			Details:  map[string]any{"reason": err.Error()},
		})
		e.metrics.RecordAuditEvent(ctx, security.EventPKCEValidationFailed)
		return nil, ErrInvalidRequest(fmt.Sprintf("PKCE validation failed: %v", err))
	}

	// The scope was fixed at authorization time; the token request cannot
	// change it.
	resp, err := e.issueTokens(ctx, issuance{
		client:      client,
		grantType:   GrantTypeAuthorizationCode,
		subject:     grant.Subject,
		scope:       scope.Parse(grant.Scope),
		withRefresh: e.refreshEligible(client),
	})
	if err != nil {
		return nil, err
	}

	e.auditor.LogTokenIssued(grant.Subject, client.ID, GrantTypeAuthorizationCode, resp.Scope)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenIssued)
	return resp, nil
}

// handleCodeReplay reacts to an exchange attempt with an already-consumed
// authorization code. OAuth 2.1 treats replay as interception evidence:
// every token issued to that subject and client is revoked when the store
// supports it.
func (e *Engine) handleCodeReplay(ctx context.Context, grant *storage.AuthorizationGrant, clientID, code string) {
	e.metrics.RecordGrantReplay(ctx)
	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx),
		attribute.Bool(instrumentation.AttrCodeReplay, true))

	if grant == nil {
		e.logger.Error("Authorization code replay detected",
			"client_id", clientID,
			"code_prefix", util.SafeTruncate(code, tokenLogPrefixLen))
		return
	}

	e.logger.Error("Authorization code replay detected, revoking issued tokens",
		"client_id", clientID,
		"code_prefix", util.SafeTruncate(code, tokenLogPrefixLen))
	e.auditor.LogCodeReplay(grant.Subject, clientID)
	e.metrics.RecordAuditEvent(ctx, security.EventCodeReplayDetected)

	revoker, ok := e.store.(storage.UserClientRevoker)
	if !ok {
		e.logger.Warn("Store cannot revoke by subject and client, replay mitigation skipped")
		return
	}

	// Revoke against the client the code was issued to; the replaying
	// caller may be a different client entirely.
	revoked, err := revoker.RevokeUserClientTokens(ctx, grant.Subject, grant.ClientID)
	if err != nil {
		e.logger.Error("Failed to revoke tokens after code replay", "error", err)
		return
	}
	e.logger.Warn("Revoked all tokens for subject and client after code replay",
		"client_id", grant.ClientID,
		"tokens_revoked", revoked)
}

// exchangeClientCredentials runs the client_credentials grant. The token
// carries no subject and no refresh token is issued (RFC 6749
// Section 4.4.3).
func (e *Engine) exchangeClientCredentials(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if client.IsPublic() {
		e.auditor.LogAuthFailure(client.ID, "public_client_credentials_grant")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrUnauthorizedClient("the client_credentials grant requires a confidential client")
	}

	granted, err := e.resolveScope(req.Scope, client.Scopes)
	if err != nil {
		e.auditScopeEscalation(ctx, "", client.ID, req.Scope)
		return nil, ErrInvalidScope(err.Error())
	}

	resp, err := e.issueTokens(ctx, issuance{
		client:    client,
		grantType: GrantTypeClientCredentials,
		scope:     granted,
	})
	if err != nil {
		return nil, err
	}

	e.auditor.LogTokenIssued("", client.ID, GrantTypeClientCredentials, resp.Scope)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenIssued)
	return resp, nil
}

// exchangeRefreshToken runs the refresh_token grant. With rotation enabled
// the presented token is claimed atomically and replaced by the next
// generation of its family; presenting an already-rotated token is theft
// evidence and kills the whole family.
func (e *Engine) exchangeRefreshToken(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}
	if client.IsPublic() && !e.config.AllowPublicRefresh {
		return nil, ErrUnauthorizedClient("public clients may not use the refresh_token grant")
	}

	if e.config.RotateRefreshTokens {
		return e.refreshWithRotation(ctx, client, req)
	}
	return e.refreshWithoutRotation(ctx, client, req)
}

func (e *Engine) refreshWithRotation(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	consumer, ok := e.store.(storage.RefreshTokenConsumer)
	if !ok {
		// Without the atomic claim two concurrent refreshes could both
		// succeed, which defeats rotation.
		e.logger.Error("Store does not support atomic refresh token consumption, rotation unavailable")
		return nil, ErrStorageError("refresh token rotation is not supported by the storage backend")
	}

	oldToken, err := consumer.ConsumeRefreshToken(ctx, req.RefreshToken)
	switch {
	case err == nil:
		// Single winner, carry on.
	case errors.Is(err, storage.ErrTokenRevoked):
		e.handleRefreshReuse(ctx, oldToken, client.ID)
		return nil, ErrInvalidGrant("invalid grant")
	case errors.Is(err, storage.ErrTokenNotFound), errors.Is(err, storage.ErrTokenExpired):
		e.logger.Debug("Refresh token rejected",
			"reason", err.Error(),
			"client_id", client.ID,
			"token_prefix", util.SafeTruncate(req.RefreshToken, tokenLogPrefixLen))
		e.auditor.LogAuthFailure(client.ID, "invalid_refresh_token")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	default:
		e.logger.Error("Failed to consume refresh token", "error", err)
		return nil, ErrStorageError("refresh token lookup failed")
	}

	if oldToken.ClientID != client.ID {
		// A valid token presented by the wrong client. The claim above
		// already retired it; the rightful owner's next refresh trips the
		// reuse handler and the family dies there.
		e.logger.Warn("Refresh token presented by a different client",
			"client_id", client.ID,
			"token_prefix", util.SafeTruncate(req.RefreshToken, tokenLogPrefixLen))
		e.auditor.LogAuthFailure(client.ID, "refresh_token_client_mismatch")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	}

	granted, err := narrowScope(req.Scope, oldToken.Scope)
	if err != nil {
		e.auditScopeEscalation(ctx, oldToken.Subject, client.ID, req.Scope)
		return nil, ErrInvalidScope(err.Error())
	}

	// Rotation retires the paired access token along with the refresh
	// token itself.
	if oldToken.AccessToken != "" {
		if err := e.store.RevokeAccessToken(ctx, oldToken.AccessToken); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			e.logger.Warn("Failed to revoke rotated-away access token", "error", err)
		}
	}

	resp, err := e.issueTokens(ctx, issuance{
		client:      client,
		grantType:   GrantTypeRefreshToken,
		subject:     oldToken.Subject,
		scope:       granted,
		withRefresh: true,
		familyID:    oldToken.FamilyID,
		generation:  oldToken.Generation + 1,
	})
	if err != nil {
		return nil, err
	}

	instrumentation.AddTokenFamilyAttributes(trace.SpanFromContext(ctx), oldToken.FamilyID, oldToken.Generation+1)
	e.metrics.RecordTokenRefresh(ctx, client.ID, true)
	e.auditor.LogTokenRefreshed(oldToken.Subject, client.ID, true)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenRefreshed)
	e.logger.Info("Refresh token rotated",
		"client_id", client.ID,
		"family_id", util.SafeTruncate(oldToken.FamilyID, tokenLogPrefixLen),
		"generation", oldToken.Generation+1)

	return resp, nil
}

// refreshWithoutRotation reissues the access token while the refresh token
// stays valid. The prior access token is revoked and the refresh record
// rebound to its replacement.
func (e *Engine) refreshWithoutRotation(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	oldToken, err := e.store.GetRefreshToken(ctx, req.RefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrTokenNotFound), errors.Is(err, storage.ErrTokenExpired):
		e.logger.Debug("Refresh token rejected",
			"reason", err.Error(),
			"client_id", client.ID,
			"token_prefix", util.SafeTruncate(req.RefreshToken, tokenLogPrefixLen))
		e.auditor.LogAuthFailure(client.ID, "invalid_refresh_token")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	default:
		e.logger.Error("Failed to load refresh token", "error", err)
		return nil, ErrStorageError("refresh token lookup failed")
	}

	if oldToken.Revoked {
		e.auditor.LogAuthFailure(client.ID, "revoked_refresh_token")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	}
	if oldToken.ClientID != client.ID {
		e.auditor.LogAuthFailure(client.ID, "refresh_token_client_mismatch")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid grant")
	}

	granted, err := narrowScope(req.Scope, oldToken.Scope)
	if err != nil {
		e.auditScopeEscalation(ctx, oldToken.Subject, client.ID, req.Scope)
		return nil, ErrInvalidScope(err.Error())
	}

	if oldToken.AccessToken != "" {
		if err := e.store.RevokeAccessToken(ctx, oldToken.AccessToken); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			e.logger.Warn("Failed to revoke replaced access token", "error", err)
		}
	}

	now := e.now()
	record, minted, err := e.mintAccessToken(client, oldToken.Subject, granted.String(), now)
	if err != nil {
		e.logger.Error("Failed to mint access token", "error", err)
		return nil, ErrServerError("failed to mint access token")
	}

	if e.trackAccessToken() {
		if err := e.store.SaveAccessToken(ctx, record); err != nil {
			e.logger.Error("Failed to save access token", "error", err)
			return nil, ErrStorageError("failed to persist access token")
		}
	}

	// Rebind the refresh record to the replacement access token.
	oldToken.AccessToken = record.Token
	if err := e.store.SaveRefreshToken(ctx, oldToken); err != nil {
		e.logger.Error("Failed to update refresh token record", "error", err)
		return nil, ErrStorageError("failed to persist refresh token")
	}

	e.metrics.RecordTokenIssued(ctx, GrantTypeRefreshToken)
	e.metrics.RecordTokenRefresh(ctx, client.ID, false)
	e.auditor.LogTokenRefreshed(oldToken.Subject, client.ID, false)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenRefreshed)
	e.logger.Warn("Refresh token reused without rotation",
		"client_id", client.ID,
		"token_prefix", util.SafeTruncate(req.RefreshToken, tokenLogPrefixLen))

	return &TokenResponse{
		AccessToken:  minted,
		TokenType:    BearerTokenType,
		ExpiresIn:    e.config.AccessTokenTTL,
		RefreshToken: req.RefreshToken,
		Scope:        granted.String(),
	}, nil
}

// handleRefreshReuse reacts to the presentation of an already-rotated
// refresh token. The presented token being dead while its family lives means
// someone holds a stolen copy, so the whole family is revoked.
func (e *Engine) handleRefreshReuse(ctx context.Context, oldToken *storage.RefreshToken, clientID string) {
	e.metrics.RecordTokenReuse(ctx)
	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx),
		attribute.Bool(instrumentation.AttrTokenReuse, true))

	if oldToken == nil {
		e.logger.Error("Refresh token reuse detected", "client_id", clientID)
		return
	}

	e.logger.Error("Refresh token reuse detected, revoking token family",
		"client_id", clientID,
		"family_id", util.SafeTruncate(oldToken.FamilyID, tokenLogPrefixLen),
		"generation", oldToken.Generation)
	e.auditor.LogRefreshReuse(oldToken.Subject, clientID, oldToken.FamilyID)
	e.metrics.RecordAuditEvent(ctx, security.EventRefreshTokenReuseDetected)

	revoker, ok := e.store.(storage.FamilyRevoker)
	if !ok || oldToken.FamilyID == "" {
		e.logger.Warn("Store cannot revoke token families, reuse mitigation limited to the presented token")
		return
	}

	revoked, err := revoker.RevokeTokenFamily(ctx, oldToken.FamilyID)
	if err != nil {
		e.logger.Error("Failed to revoke token family", "error", err)
		return
	}

	e.auditor.LogEvent(security.Event{
		Type:     security.EventFamilyRevoked,
		Subject:  oldToken.Subject,
		ClientID: clientID,
		Details:  map[string]any{"tokens_revoked": revoked},
	})
	e.metrics.RecordAuditEvent(ctx, security.EventFamilyRevoked)
	e.logger.Warn("Revoked refresh token family",
		"family_id", util.SafeTruncate(oldToken.FamilyID, tokenLogPrefixLen),
		"tokens_revoked", revoked)
}

// exchangePassword runs the resource owner password grant. Credential
// verification is fully delegated to the configured PasswordVerifier; the
// engine only uses the subject it returns.
func (e *Engine) exchangePassword(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidRequest("username and password are required")
	}
	if e.verifier == nil {
		// New rejects this configuration; guard against direct struct use.
		e.logger.Error("Password grant requested but no PasswordVerifier is configured")
		return nil, ErrServerError("password verification is not configured")
	}

	subject, err := e.verifier.VerifyPassword(ctx, req.Username, req.Password)
	if err != nil || subject == "" {
		// SECURITY: unknown users and wrong passwords are indistinguishable.
		e.auditor.LogAuthFailure(client.ID, "resource_owner_verification_failed")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidGrant("invalid resource owner credentials")
	}

	granted, err := e.resolveScope(req.Scope, client.Scopes)
	if err != nil {
		e.auditScopeEscalation(ctx, subject, client.ID, req.Scope)
		return nil, ErrInvalidScope(err.Error())
	}

	resp, err := e.issueTokens(ctx, issuance{
		client:      client,
		grantType:   GrantTypePassword,
		subject:     subject,
		scope:       granted,
		withRefresh: e.refreshEligible(client),
	})
	if err != nil {
		return nil, err
	}

	e.auditor.LogTokenIssued(subject, client.ID, GrantTypePassword, resp.Scope)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenIssued)
	return resp, nil
}

// refreshEligible reports whether an issuance for this client comes with a
// refresh token.
func (e *Engine) refreshEligible(client *storage.Client) bool {
	if !e.config.grantTypeEnabled(GrantTypeRefreshToken) {
		return false
	}
	if !clientAllowsGrantType(client, GrantTypeRefreshToken) {
		return false
	}
	if client.IsPublic() && !e.config.AllowPublicRefresh {
		return false
	}
	return true
}

func (e *Engine) auditScopeEscalation(ctx context.Context, subject, clientID, requestedScope string) {
	e.auditor.LogEvent(security.Event{
		Type:     security.EventScopeEscalationAttempt,
		Subject:  subject,
		ClientID: clientID,
		Details:  map[string]any{"requested_scope": requestedScope},
	})
	e.metrics.RecordAuditEvent(ctx, security.EventScopeEscalationAttempt)
}
