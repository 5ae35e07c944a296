package oauth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-engine/internal/testutil"
)

func TestAuthorize_CodeFlow(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, nil)
	client := saveClient(t, store, testutil.GenerateTestClient())

	challenge, _ := testutil.GeneratePKCEPair()
	resp, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        ResponseTypeCode,
		ClientID:            client.ID,
		RedirectURI:         testRedirectURI,
		Scope:               "openid email",
		State:               "opaque-state-value",
		CodeChallenge:       challenge,
		CodeChallengeMethod: PKCEMethodS256,
		Subject:             testSubject,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if resp.Code == "" {
		t.Fatal("missing authorization code")
	}
	if resp.State != "opaque-state-value" {
		t.Errorf("state = %q, want the caller's value echoed back", resp.State)
	}
	if resp.AccessToken != "" {
		t.Error("code flow must not issue tokens at the authorization endpoint")
	}

	grant, err := store.GetGrant(ctx, resp.Code)
	if err != nil {
		t.Fatalf("GetGrant() error = %v", err)
	}
	if grant.ClientID != client.ID {
		t.Errorf("grant client_id = %q, want %q", grant.ClientID, client.ID)
	}
	if grant.Subject != testSubject {
		t.Errorf("grant subject = %q, want %q", grant.Subject, testSubject)
	}
	if grant.RedirectURI != testRedirectURI {
		t.Errorf("grant redirect_uri = %q, want %q", grant.RedirectURI, testRedirectURI)
	}
	if grant.CodeChallenge != challenge {
		t.Error("grant does not carry the code challenge")
	}
	if grant.CodeChallengeMethod != PKCEMethodS256 {
		t.Errorf("grant challenge method = %q, want %q", grant.CodeChallengeMethod, PKCEMethodS256)
	}
	if grant.Scope != "email openid" {
		t.Errorf("grant scope = %q, want %q", grant.Scope, "email openid")
	}
	wantExpiry := grant.CreatedAt.Add(time.Duration(DefaultAuthorizationCodeTTL) * time.Second)
	if !grant.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("grant expires_at = %v, want %v", grant.ExpiresAt, wantExpiry)
	}
}

func TestAuthorize_ConfidentialClientWithoutPKCE(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, nil)
	client := saveClient(t, store, testutil.GenerateTestClient())

	// PKCE is only mandatory for public clients; a confidential client may
	// still authenticate its exchange with its secret alone.
	resp, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID,
		RedirectURI:  testRedirectURI,
		Scope:        "openid",
		Subject:      testSubject,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if _, err := engine.Exchange(ctx, &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		ClientID:     client.ID,
		ClientSecret: testClientSecret,
		Code:         resp.Code,
		RedirectURI:  testRedirectURI,
	}); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
}

func TestAuthorize_RedirectURIDefaulting(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, nil)
	client := saveClient(t, store, testutil.GenerateTestClient())

	challenge, verifier := testutil.GeneratePKCEPair()
	resp, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        ResponseTypeCode,
		ClientID:            client.ID,
		Scope:               "openid",
		CodeChallenge:       challenge,
		CodeChallengeMethod: PKCEMethodS256,
		Subject:             testSubject,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	// The grant is bound to the sole registered URI, and the token request
	// must present exactly that value.
	grant, err := store.GetGrant(ctx, resp.Code)
	if err != nil {
		t.Fatalf("GetGrant() error = %v", err)
	}
	if grant.RedirectURI != testRedirectURI {
		t.Errorf("grant redirect_uri = %q, want the registered default %q", grant.RedirectURI, testRedirectURI)
	}

	if _, err := engine.Exchange(ctx, &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		ClientID:     client.ID,
		ClientSecret: testClientSecret,
		Code:         resp.Code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: verifier,
	}); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
}

func TestAuthorize_Validation(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, nil)
	saveClient(t, store, testutil.GenerateTestClient())
	public := saveClient(t, store, testutil.GenerateTestPublicClient())

	multiRedirect := testutil.GenerateTestClient()
	multiRedirect.ID = "multi-redirect-client"
	multiRedirect.RedirectURIs = []string{testRedirectURI, "https://example.com/alt"}
	saveClient(t, store, multiRedirect)

	challenge, _ := testutil.GeneratePKCEPair()

	tests := []struct {
		name     string
		req      *AuthorizeRequest
		wantCode string
	}{
		{
			name: "unknown client",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     "no-such-client",
				RedirectURI:  testRedirectURI,
				Subject:      testSubject,
			},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name: "missing subject",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     "test-client-id",
				RedirectURI:  testRedirectURI,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "unregistered redirect uri",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     "test-client-id",
				RedirectURI:  "https://evil.example.com/callback",
				Subject:      testSubject,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "redirect uri prefix is not a match",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     "test-client-id",
				RedirectURI:  testRedirectURI + "/extra",
				Subject:      testSubject,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "ambiguous default redirect uri",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     multiRedirect.ID,
				Subject:      testSubject,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "unknown response type",
			req: &AuthorizeRequest{
				ResponseType: "id_token",
				ClientID:     "test-client-id",
				RedirectURI:  testRedirectURI,
				Subject:      testSubject,
			},
			wantCode: ErrorCodeUnsupportedResponseType,
		},
		{
			name: "implicit disabled by default",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeToken,
				ClientID:     "test-client-id",
				RedirectURI:  testRedirectURI,
				Subject:      testSubject,
			},
			wantCode: ErrorCodeUnsupportedResponseType,
		},
		{
			name: "scope escalation",
			req: &AuthorizeRequest{
				ResponseType:        ResponseTypeCode,
				ClientID:            "test-client-id",
				RedirectURI:         testRedirectURI,
				Scope:               "openid admin",
				CodeChallenge:       challenge,
				CodeChallengeMethod: PKCEMethodS256,
				Subject:             testSubject,
			},
			wantCode: ErrorCodeInvalidScope,
		},
		{
			name: "public client without pkce",
			req: &AuthorizeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     public.ID,
				RedirectURI:  testRedirectURI,
				Subject:      testSubject,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "challenge without method",
			req: &AuthorizeRequest{
				ResponseType:  ResponseTypeCode,
				ClientID:      "test-client-id",
				RedirectURI:   testRedirectURI,
				CodeChallenge: challenge,
				Subject:       testSubject,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "plain challenge rejected by default",
			req: &AuthorizeRequest{
				ResponseType:        ResponseTypeCode,
				ClientID:            "test-client-id",
				RedirectURI:         testRedirectURI,
				CodeChallenge:       testutil.GenerateRandomString(43),
				CodeChallengeMethod: PKCEMethodPlain,
				Subject:             testSubject,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Authorize(ctx, tt.req)
			wantOAuthError(t, err, tt.wantCode)
		})
	}
}

func TestAuthorize_NilRequest(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	_, err := engine.Authorize(context.Background(), nil)
	wantOAuthError(t, err, ErrorCodeInvalidRequest)
}

func implicitConfig() *Config {
	config := DefaultConfig()
	config.EnabledGrantTypes = append(config.EnabledGrantTypes, GrantTypeImplicit)
	return config
}

func TestAuthorize_ImplicitFlow(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, implicitConfig())

	client := testutil.GenerateTestClient()
	client.GrantTypes = append(client.GrantTypes, GrantTypeImplicit)
	saveClient(t, store, client)

	resp, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType: ResponseTypeToken,
		ClientID:     client.ID,
		RedirectURI:  testRedirectURI,
		Scope:        "openid",
		State:        "fragment-state",
		Subject:      testSubject,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if resp.AccessToken == "" {
		t.Fatal("missing access token")
	}
	if resp.Code != "" {
		t.Error("implicit flow must not mint an authorization code")
	}
	if resp.TokenType != BearerTokenType {
		t.Errorf("token_type = %q, want %q", resp.TokenType, BearerTokenType)
	}
	if resp.ExpiresIn != DefaultAccessTokenTTL {
		t.Errorf("expires_in = %d, want %d", resp.ExpiresIn, DefaultAccessTokenTTL)
	}
	if resp.State != "fragment-state" {
		t.Errorf("state = %q, want fragment-state", resp.State)
	}

	record, err := engine.VerifyAccessToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken() error = %v", err)
	}
	if record.Subject != testSubject {
		t.Errorf("subject = %q, want %q", record.Subject, testSubject)
	}
	if record.RefreshToken != "" {
		t.Error("implicit flow must not issue a refresh token")
	}
}

func TestAuthorize_ImplicitRequiresClientRegistration(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, implicitConfig())

	// Implicit is enabled server-wide but this client is not registered
	// for it.
	client := saveClient(t, store, testutil.GenerateTestClient())

	_, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType: ResponseTypeToken,
		ClientID:     client.ID,
		RedirectURI:  testRedirectURI,
		Subject:      testSubject,
	})
	wantOAuthError(t, err, ErrorCodeUnauthorizedClient)
}

func TestAuthorize_CodeRequiresClientRegistration(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, nil)

	client := testutil.GenerateTestClient()
	client.GrantTypes = []string{GrantTypeClientCredentials}
	saveClient(t, store, client)

	_, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID,
		RedirectURI:  testRedirectURI,
		Subject:      testSubject,
	})
	wantOAuthError(t, err, ErrorCodeUnauthorizedClient)
}

func TestAuthorize_SubjectNeverInResponse(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, nil)
	client := saveClient(t, store, testutil.GenerateTestClient())

	challenge, _ := testutil.GeneratePKCEPair()
	resp, err := engine.Authorize(ctx, &AuthorizeRequest{
		ResponseType:        ResponseTypeCode,
		ClientID:            client.ID,
		RedirectURI:         testRedirectURI,
		CodeChallenge:       challenge,
		CodeChallengeMethod: PKCEMethodS256,
		Subject:             testSubject,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	// The code is opaque; the subject must not be recoverable from it.
	if strings.Contains(resp.Code, testSubject) {
		t.Error("authorization code embeds the subject")
	}
}
