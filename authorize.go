package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-engine/instrumentation"
	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/scope"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
	"github.com/giantswarm/oauth2-engine/token"
)

// Authorize processes an authorization-endpoint request after the caller has
// authenticated the resource owner and obtained consent. For
// response_type=code it mints and stores an authorization grant; for
// response_type=token (implicit) it issues an access token directly. The
// caller assembles the redirect from the structured response.
//
// Validation order: client, redirect URI, response type, scope, PKCE. The
// redirect URI comes first so nothing is ever reported through an
// unvalidated one.
func (e *Engine) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest("authorization request is required")
	}

	ctx, span := e.tracer.Start(ctx, "oauth.authorize")
	defer span.End()

	resp, err := e.authorize(ctx, req)
	if err != nil {
		instrumentation.SetSpanError(span, errorCode(err))
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (e *Engine) authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error) {
	if req.Subject == "" {
		return nil, ErrInvalidRequest("subject is required: authenticate the resource owner before authorization")
	}

	client, err := e.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			e.auditor.LogAuthFailure(req.ClientID, "unknown_client")
			e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
			return nil, ErrInvalidClient("unknown client")
		}
		e.logger.Error("Client lookup failed", "client_id", req.ClientID, "error", err)
		return nil, ErrStorageError("client lookup failed")
	}

	instrumentation.AddOAuthFlowAttributes(trace.SpanFromContext(ctx), client.ID, req.Subject, req.Scope)

	// SECURITY: validate the redirect URI before anything else so no error
	// or artifact ever travels through an unregistered one.
	redirectURI, err := resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		e.auditor.LogEvent(security.Event{
			Type:     security.EventInvalidRedirect,
			Subject:  req.Subject,
			ClientID: client.ID,
			Details:  map[string]any{"redirect_uri": req.RedirectURI},
		})
		e.metrics.RecordAuditEvent(ctx, security.EventInvalidRedirect)
		return nil, ErrInvalidRequest(err.Error())
	}

	switch req.ResponseType {
	case ResponseTypeCode:
		if !e.config.grantTypeEnabled(GrantTypeAuthorizationCode) {
			return nil, ErrUnsupportedResponseType("the code response type is not enabled")
		}
		if !client.HasGrantType(GrantTypeAuthorizationCode) {
			return nil, ErrUnauthorizedClient("client is not authorized for the authorization_code grant")
		}
	case ResponseTypeToken:
		if !e.config.grantTypeEnabled(GrantTypeImplicit) {
			return nil, ErrUnsupportedResponseType("the token response type is not enabled")
		}
		if !client.HasGrantType(GrantTypeImplicit) {
			return nil, ErrUnauthorizedClient("client is not authorized for the implicit grant")
		}
	default:
		return nil, ErrUnsupportedResponseType(fmt.Sprintf("unsupported response type: %q", req.ResponseType))
	}

	granted, err := e.resolveScope(req.Scope, client.Scopes)
	if err != nil {
		e.auditScopeEscalation(ctx, req.Subject, client.ID, req.Scope)
		return nil, ErrInvalidScope(err.Error())
	}

	if err := e.validateChallenge(client, req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		e.metrics.RecordPKCEValidationFailed(ctx, req.CodeChallengeMethod)
		e.auditor.LogAuthFailure(client.ID, "invalid_pkce_parameters")
		e.metrics.RecordAuditEvent(ctx, security.EventAuthFailure)
		return nil, ErrInvalidRequest(err.Error())
	}

	if req.ResponseType == ResponseTypeToken {
		return e.authorizeImplicit(ctx, client, req, granted)
	}
	return e.authorizeCode(ctx, client, req, granted, redirectURI)
}

// authorizeCode mints a single-use authorization code bound to the client,
// subject, redirect URI, scope and PKCE challenge.
func (e *Engine) authorizeCode(ctx context.Context, client *storage.Client, req *AuthorizeRequest, granted scope.Set, redirectURI string) (*AuthorizeResponse, error) {
	now := e.now()
	grant := &storage.AuthorizationGrant{
		Code:                token.NewOpaque(),
		ClientID:            client.ID,
		Subject:             req.Subject,
		RedirectURI:         redirectURI,
		Scope:               granted.String(),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(e.config.AuthorizationCodeTTL) * time.Second),
	}

	if err := e.store.SaveGrant(ctx, grant); err != nil {
		e.logger.Error("Failed to save authorization grant", "error", err)
		return nil, ErrStorageError("failed to persist authorization grant")
	}

	e.metrics.RecordGrantIssued(ctx, client.ID)
	e.auditor.LogEvent(security.Event{
		Type:     security.EventAuthorizationCodeIssued,
		Subject:  req.Subject,
		ClientID: client.ID,
		Details:  map[string]any{"scope": grant.Scope, "pkce": grant.CodeChallenge != ""},
	})
	e.metrics.RecordAuditEvent(ctx, security.EventAuthorizationCodeIssued)
	e.logger.Debug("Issued authorization code",
		"client_id", client.ID,
		"code_prefix", util.SafeTruncate(grant.Code, tokenLogPrefixLen))

	return &AuthorizeResponse{Code: grant.Code, State: req.State}, nil
}

// authorizeImplicit issues an access token straight from the authorization
// endpoint. Never issues a refresh token.
func (e *Engine) authorizeImplicit(ctx context.Context, client *storage.Client, req *AuthorizeRequest, granted scope.Set) (*AuthorizeResponse, error) {
	resp, err := e.issueTokens(ctx, issuance{
		client:    client,
		grantType: GrantTypeImplicit,
		subject:   req.Subject,
		scope:     granted,
	})
	if err != nil {
		return nil, err
	}

	e.auditor.LogTokenIssued(req.Subject, client.ID, GrantTypeImplicit, resp.Scope)
	e.metrics.RecordAuditEvent(ctx, security.EventTokenIssued)

	return &AuthorizeResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		Scope:       resp.Scope,
		State:       req.State,
	}, nil
}
