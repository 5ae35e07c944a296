package oauth

// Grant type identifiers (RFC 6749, OAuth 2.1 draft).
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypePassword          = "password"
	GrantTypeImplicit          = "implicit"
)

// Response types served by the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// PKCE constants (RFC 7636).
const (
	// PKCEMethodS256 is the SHA-256 code challenge method.
	PKCEMethodS256 = "S256"

	// PKCEMethodPlain is the plaintext code challenge method.
	// SECURITY: only accepted when Config.AllowPlainPKCE is set.
	PKCEMethodPlain = "plain"

	// MinCodeVerifierLength is the minimum code_verifier length (RFC 7636 Section 4.1).
	MinCodeVerifierLength = 43

	// MaxCodeVerifierLength is the maximum code_verifier length (RFC 7636 Section 4.1).
	MaxCodeVerifierLength = 128
)

// Access token wire formats.
const (
	// TokenFormatOpaque issues random tokens resolved through storage.
	TokenFormatOpaque = "opaque"

	// TokenFormatJWT issues signed, self-contained tokens (RFC 9068).
	TokenFormatJWT = "jwt"
)

// Token type hints for introspection and revocation (RFC 7662, RFC 7009).
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// BearerTokenType is the token_type value in every token response (RFC 6750).
const BearerTokenType = "Bearer"

// Default token lifetimes and grace periods, in seconds.
const (
	// DefaultAccessTokenTTL is 1 hour.
	DefaultAccessTokenTTL int64 = 3600

	// DefaultRefreshTokenTTL is 90 days.
	DefaultRefreshTokenTTL int64 = 90 * 24 * 3600

	// DefaultAuthorizationCodeTTL is 10 minutes. RFC 6749 Section 4.1.2
	// recommends a maximum of 10 minutes.
	DefaultAuthorizationCodeTTL int64 = 600

	// DefaultClockSkewGracePeriod tolerates small clock drift between the
	// engine and its storage or token consumers at validation boundaries.
	DefaultClockSkewGracePeriod int64 = 5
)

// DefaultEnabledGrantTypes are the grant types a fresh configuration serves.
// The password and implicit grants are deliberately absent and must be
// enabled explicitly.
var DefaultEnabledGrantTypes = []string{
	GrantTypeAuthorizationCode,
	GrantTypeRefreshToken,
	GrantTypeClientCredentials,
}

// SupportedGrantTypes lists every grant type the engine implements.
var SupportedGrantTypes = []string{
	GrantTypeAuthorizationCode,
	GrantTypeClientCredentials,
	GrantTypeRefreshToken,
	GrantTypePassword,
	GrantTypeImplicit,
}

// SupportedCodeChallengeMethods lists the PKCE methods accepted by default.
var SupportedCodeChallengeMethods = []string{PKCEMethodS256}

// tokenLogPrefixLen bounds token material in debug logs.
const tokenLogPrefixLen = 8
