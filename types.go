package oauth

// TokenRequest carries the parameters of a token-endpoint request. A
// transport layer parses the HTTP form (and HTTP Basic client credentials)
// into this struct; the engine never touches the wire.
type TokenRequest struct {
	// GrantType selects the grant state machine, e.g. "authorization_code".
	GrantType string `json:"grant_type"`

	// ClientID identifies the requesting client.
	ClientID string `json:"client_id"`

	// ClientSecret authenticates confidential clients. Public clients must
	// leave it empty.
	ClientSecret string `json:"client_secret,omitempty"`

	// Code is the authorization code (authorization_code grant).
	Code string `json:"code,omitempty"`

	// RedirectURI must exactly match the redirect URI bound to the
	// authorization code (authorization_code grant).
	RedirectURI string `json:"redirect_uri,omitempty"`

	// CodeVerifier is the PKCE code verifier (authorization_code grant).
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RefreshToken is the token being exchanged (refresh_token grant).
	RefreshToken string `json:"refresh_token,omitempty"`

	// Username and Password are the resource owner credentials
	// (password grant).
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Scope is the requested scope in space-delimited wire form. Empty
	// requests the default scope for the client.
	Scope string `json:"scope,omitempty"`
}

// TokenResponse is a successful token-endpoint response (RFC 6749
// Section 5.1). The JSON form is the wire shape.
type TokenResponse struct {
	// AccessToken is the issued access token.
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is the issued refresh token, when the grant and client
	// qualify for one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the granted scope in space-delimited wire form.
	Scope string `json:"scope,omitempty"`
}

// AuthorizeRequest carries the parameters of an authorization-endpoint
// request. The caller must authenticate the resource owner and obtain
// consent before invoking Authorize; Subject identifies the outcome of that
// step and never travels on the wire.
type AuthorizeRequest struct {
	// ResponseType is "code" for the authorization code flow or "token" for
	// the implicit flow.
	ResponseType string `json:"response_type"`

	// ClientID identifies the requesting client.
	ClientID string `json:"client_id"`

	// RedirectURI is where the client wants the response delivered. It must
	// exactly match a registered URI; empty is allowed only when the client
	// has exactly one registered URI.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// Scope is the requested scope in space-delimited wire form.
	Scope string `json:"scope,omitempty"`

	// State is the client's opaque CSRF value, echoed back verbatim.
	State string `json:"state,omitempty"`

	// CodeChallenge and CodeChallengeMethod are the PKCE binding
	// (code flow only).
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`

	// Subject is the authenticated resource owner granting the
	// authorization.
	Subject string `json:"-"`
}

// AuthorizeResponse is a successful authorization-endpoint response. For the
// code flow only Code and State are set; for the implicit flow the token
// fields are set instead. The caller assembles the redirect (query or
// fragment) from these fields.
type AuthorizeResponse struct {
	// Code is the authorization code (code flow).
	Code string `json:"code,omitempty"`

	// State echoes the request's state value verbatim.
	State string `json:"state,omitempty"`

	// AccessToken, TokenType, ExpiresIn and Scope carry the directly issued
	// token (implicit flow). Implicit issuance never includes a refresh
	// token.
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Introspection is a token introspection result (RFC 7662 Section 2.2).
// For inactive tokens only Active is populated, so callers cannot learn
// anything about tokens they merely guessed.
type Introspection struct {
	// Active reports whether the token has been issued, is not expired and
	// is not revoked.
	Active bool `json:"active"`

	// Scope is the token's scope in space-delimited wire form.
	Scope string `json:"scope,omitempty"`

	// ClientID is the client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// Subject is the resource owner the token represents. Empty for
	// client_credentials tokens.
	Subject string `json:"sub,omitempty"`

	// TokenType is "access_token" or "refresh_token".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresAt and IssuedAt are Unix timestamps in seconds.
	ExpiresAt int64 `json:"exp,omitempty"`
	IssuedAt  int64 `json:"iat,omitempty"`
}
