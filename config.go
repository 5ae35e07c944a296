package oauth

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
)

// Config holds the engine configuration. Zero values get secure defaults in
// New; after that the engine treats the configuration as immutable.
type Config struct {
	// AccessTokenTTL is how long access tokens are valid.
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid.
	RefreshTokenTTL int64 // seconds, default: 7776000 (90 days)

	// AuthorizationCodeTTL is how long authorization codes are valid.
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// ClockSkewGracePeriod is the tolerance applied to expiry checks at
	// validation boundaries.
	ClockSkewGracePeriod int64 // seconds, default: 5

	// EnabledGrantTypes lists the grant types the engine serves. The
	// password and implicit grants are never enabled by default.
	// Default: authorization_code, refresh_token, client_credentials
	EnabledGrantTypes []string

	// RotateRefreshTokens retires a refresh token on every use and issues a
	// replacement in the same rotation family (OAuth 2.1). Reuse of a
	// retired token revokes the whole family.
	// Default: true
	RotateRefreshTokens bool

	// RequirePKCE makes the code challenge mandatory for public clients at
	// the authorization endpoint (OAuth 2.1).
	// Default: true
	RequirePKCE bool

	// AllowPlainPKCE accepts the "plain" code_challenge_method.
	// SECURITY: plain offers no protection when the challenge leaks; leave
	// this off unless a legacy client cannot compute S256.
	// Default: false
	AllowPlainPKCE bool

	// AllowPublicRefresh lets public clients use the refresh_token grant.
	// Rotation with family revocation contains a stolen token, so this
	// defaults to on.
	// Default: true
	AllowPublicRefresh bool

	// TokenFormat selects the access token codec: "opaque" (random value
	// resolved through storage) or "jwt" (signed, self-contained). Refresh
	// tokens and authorization codes are always opaque.
	// Default: "opaque"
	TokenFormat string

	// JWT configures the "jwt" token format. Ignored for "opaque".
	JWT JWTConfig

	// DisableJTITracking skips the storage record for JWT access tokens.
	// SECURITY: without the record, revocation of an access token has no
	// effect until the token expires on its own.
	// Default: false
	DisableJTITracking bool

	// PasswordVerifier checks resource owner credentials for the password
	// grant. Required when EnabledGrantTypes includes "password".
	PasswordVerifier PasswordVerifier
}

// JWTConfig holds signing material and claim settings for self-contained
// access tokens (RFC 9068).
type JWTConfig struct {
	// Issuer is the iss claim on minted tokens.
	Issuer string

	// Audience is the aud claim on minted tokens.
	Audience []string

	// SigningKey selects RS256 signing.
	SigningKey *rsa.PrivateKey

	// SigningSecret selects HS256 signing. Ignored when SigningKey is set.
	SigningSecret []byte
}

// DefaultConfig returns a configuration with secure defaults: opaque tokens,
// refresh rotation on, PKCE required for public clients, password and
// implicit grants disabled.
func DefaultConfig() *Config {
	config := &Config{}
	applyTimeDefaults(config)
	applySecurityDefaults(config)
	return config
}

// applySecureDefaults fills zero values with secure defaults and logs a
// warning for every insecure setting that survives.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applySecurityDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

func applyTimeDefaults(config *Config) {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = DefaultClockSkewGracePeriod
	}
	if len(config.EnabledGrantTypes) == 0 {
		config.EnabledGrantTypes = append([]string(nil), DefaultEnabledGrantTypes...)
	}
	if config.TokenFormat == "" {
		config.TokenFormat = TokenFormatOpaque
	}
}

func applySecurityDefaults(config *Config) {
	// Heuristic: a config with every security boolean false is a fresh
	// zero-value config, not one that deliberately disabled them all.
	isDefaultConfig := !config.RotateRefreshTokens &&
		!config.RequirePKCE &&
		!config.AllowPlainPKCE &&
		!config.AllowPublicRefresh

	if isDefaultConfig {
		config.RotateRefreshTokens = true
		config.RequirePKCE = true
		config.AllowPublicRefresh = true
	}
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if !config.RequirePKCE {
		logger.Warn("⚠️  SECURITY WARNING: PKCE is not required for public clients",
			"risk", "Authorization code interception attacks",
			"recommendation", "Set RequirePKCE=true (OAuth 2.1)")
	}
	if config.AllowPlainPKCE {
		logger.Warn("⚠️  SECURITY WARNING: Plain PKCE method is allowed",
			"risk", "A leaked code_challenge directly reveals the code_verifier",
			"recommendation", "Set AllowPlainPKCE=false to require S256")
	}
	if !config.RotateRefreshTokens {
		logger.Warn("⚠️  SECURITY WARNING: Refresh token rotation is disabled",
			"risk", "Stolen refresh tokens stay valid until they expire",
			"recommendation", "Set RotateRefreshTokens=true (OAuth 2.1)")
	}
	if config.grantTypeEnabled(GrantTypePassword) {
		logger.Warn("⚠️  SECURITY WARNING: Resource owner password grant is enabled",
			"risk", "Clients handle raw resource owner credentials",
			"recommendation", "Prefer the authorization code grant with PKCE")
	}
	if config.grantTypeEnabled(GrantTypeImplicit) {
		logger.Warn("⚠️  SECURITY WARNING: Implicit grant is enabled",
			"risk", "Access tokens are exposed in redirect fragments and browser history",
			"recommendation", "Prefer the authorization code grant with PKCE")
	}
	if config.AccessTokenTTL > 86400 { // 24 hours
		logger.Warn("⚠️  SECURITY WARNING: Access token lifetime exceeds 24 hours",
			"access_token_ttl_seconds", config.AccessTokenTTL,
			"recommendation", "Use short-lived access tokens with refresh tokens")
	}
	if config.TokenFormat == TokenFormatJWT && config.DisableJTITracking {
		logger.Warn("⚠️  SECURITY NOTICE: JWT access tokens are issued without revocation records",
			"risk", "Revoked tokens keep verifying until they expire",
			"recommendation", "Leave DisableJTITracking=false unless the deployment is fully stateless")
	}
}

// Validate checks the configuration for contradictions. New calls it after
// defaults are applied.
func (c *Config) Validate() error {
	switch c.TokenFormat {
	case TokenFormatOpaque:
	case TokenFormatJWT:
		if c.JWT.SigningKey == nil && len(c.JWT.SigningSecret) == 0 {
			return fmt.Errorf("token format %q requires JWT.SigningKey or JWT.SigningSecret", TokenFormatJWT)
		}
	default:
		return fmt.Errorf("unsupported token format: %q", c.TokenFormat)
	}

	for _, grantType := range c.EnabledGrantTypes {
		if !knownGrantType(grantType) {
			return fmt.Errorf("unknown grant type in EnabledGrantTypes: %q", grantType)
		}
	}

	if c.AccessTokenTTL < 0 || c.RefreshTokenTTL < 0 || c.AuthorizationCodeTTL < 0 || c.ClockSkewGracePeriod < 0 {
		return fmt.Errorf("token lifetimes cannot be negative")
	}

	if c.grantTypeEnabled(GrantTypePassword) && c.PasswordVerifier == nil {
		return fmt.Errorf("the password grant requires Config.PasswordVerifier")
	}

	return nil
}

// grantTypeEnabled reports whether the configuration serves the given grant
// type.
func (c *Config) grantTypeEnabled(grantType string) bool {
	for _, enabled := range c.EnabledGrantTypes {
		if enabled == grantType {
			return true
		}
	}
	return false
}

func knownGrantType(grantType string) bool {
	for _, supported := range SupportedGrantTypes {
		if supported == grantType {
			return true
		}
	}
	return false
}
