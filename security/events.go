package security

// Event type constants for security audit logging. Using the constants keeps
// event names consistent across the engine and queryable downstream.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when an access token is issued to a client.
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is replaced through
	// the refresh grant.
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked on request.
	EventTokenRevoked = "token_revoked"

	// EventFamilyRevoked is logged when an entire refresh-token family is
	// revoked after reuse was detected.
	EventFamilyRevoked = "token_family_revoked" //nolint:gosec // G101: event type name, not a credential

	// Authorization flow events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued.
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventCodeReplayDetected is logged when an already-consumed authorization
	// code is presented again (interception or replay attack).
	EventCodeReplayDetected = "authorization_code_replay_detected"

	// EventRefreshTokenReuseDetected is logged when a rotated-away refresh
	// token is presented again (token theft indicator).
	EventRefreshTokenReuseDetected = "refresh_token_reuse_detected"

	// Security violation events

	// EventAuthFailure is logged when client or resource-owner authentication fails.
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a client exceeds the token-endpoint rate limit.
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventPKCEValidationFailed is logged when a code_verifier does not match
	// the stored challenge.
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventInvalidRedirect is logged when a token request names a redirect URI
	// that does not match the one bound to the grant.
	EventInvalidRedirect = "invalid_redirect"

	// EventScopeEscalationAttempt is logged when a request asks for scopes
	// beyond what the client or grant allows.
	EventScopeEscalationAttempt = "scope_escalation_attempt"
)
