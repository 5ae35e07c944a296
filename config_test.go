package oauth

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	intTests := []struct {
		name string
		got  int64
		want int64
	}{
		{"AccessTokenTTL", config.AccessTokenTTL, 3600},
		{"RefreshTokenTTL", config.RefreshTokenTTL, 7776000},
		{"AuthorizationCodeTTL", config.AuthorizationCodeTTL, 600},
		{"ClockSkewGracePeriod", config.ClockSkewGracePeriod, 5},
	}
	for _, tt := range intTests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}

	boolTests := []struct {
		name string
		got  bool
		want bool
	}{
		{"RotateRefreshTokens", config.RotateRefreshTokens, true},
		{"RequirePKCE", config.RequirePKCE, true},
		{"AllowPlainPKCE", config.AllowPlainPKCE, false},
		{"AllowPublicRefresh", config.AllowPublicRefresh, true},
		{"DisableJTITracking", config.DisableJTITracking, false},
	}
	for _, tt := range boolTests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if config.TokenFormat != TokenFormatOpaque {
		t.Errorf("TokenFormat = %q, want %q", config.TokenFormat, TokenFormatOpaque)
	}

	wantGrants := map[string]bool{
		GrantTypeAuthorizationCode: true,
		GrantTypeRefreshToken:      true,
		GrantTypeClientCredentials: true,
		GrantTypePassword:          false,
		GrantTypeImplicit:          false,
	}
	for grantType, want := range wantGrants {
		if got := config.grantTypeEnabled(grantType); got != want {
			t.Errorf("grantTypeEnabled(%q) = %v, want %v", grantType, got, want)
		}
	}
}

func TestApplySecureDefaults_FreshConfig(t *testing.T) {
	// A zero-value config is indistinguishable from one that disabled every
	// protection, so the heuristic treats all-false as fresh.
	config := applySecureDefaults(&Config{}, discardLogger())

	if !config.RotateRefreshTokens {
		t.Error("RotateRefreshTokens should default to true")
	}
	if !config.RequirePKCE {
		t.Error("RequirePKCE should default to true")
	}
	if !config.AllowPublicRefresh {
		t.Error("AllowPublicRefresh should default to true")
	}
	if config.AllowPlainPKCE {
		t.Error("AllowPlainPKCE should stay false")
	}
}

func TestApplySecureDefaults_ExplicitChoicesKept(t *testing.T) {
	// One security boolean set means the caller made deliberate choices; the
	// rest must not be flipped behind their back.
	config := applySecureDefaults(&Config{RequirePKCE: true}, discardLogger())

	if config.RotateRefreshTokens {
		t.Error("RotateRefreshTokens was forced on despite an explicit config")
	}
	if config.AllowPublicRefresh {
		t.Error("AllowPublicRefresh was forced on despite an explicit config")
	}
	if !config.RequirePKCE {
		t.Error("RequirePKCE flipped off")
	}
}

func TestApplySecureDefaults_TimeDefaults(t *testing.T) {
	config := applySecureDefaults(&Config{AccessTokenTTL: 120}, discardLogger())

	if config.AccessTokenTTL != 120 {
		t.Errorf("AccessTokenTTL = %d, want 120", config.AccessTokenTTL)
	}
	if config.RefreshTokenTTL != DefaultRefreshTokenTTL {
		t.Errorf("RefreshTokenTTL = %d, want %d", config.RefreshTokenTTL, DefaultRefreshTokenTTL)
	}
	if config.AuthorizationCodeTTL != DefaultAuthorizationCodeTTL {
		t.Errorf("AuthorizationCodeTTL = %d, want %d", config.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)
	}
	if len(config.EnabledGrantTypes) != len(DefaultEnabledGrantTypes) {
		t.Errorf("EnabledGrantTypes = %v, want defaults", config.EnabledGrantTypes)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown token format",
			mutate:  func(c *Config) { c.TokenFormat = "saml" },
			wantErr: true,
		},
		{
			name:    "jwt format without signing material",
			mutate:  func(c *Config) { c.TokenFormat = TokenFormatJWT },
			wantErr: true,
		},
		{
			name: "jwt format with secret",
			mutate: func(c *Config) {
				c.TokenFormat = TokenFormatJWT
				c.JWT.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
			},
			wantErr: false,
		},
		{
			name:    "unknown grant type",
			mutate:  func(c *Config) { c.EnabledGrantTypes = append(c.EnabledGrantTypes, "device_code") },
			wantErr: true,
		},
		{
			name:    "negative lifetime",
			mutate:  func(c *Config) { c.AccessTokenTTL = -1 },
			wantErr: true,
		},
		{
			name: "password grant without verifier",
			mutate: func(c *Config) {
				c.EnabledGrantTypes = append(c.EnabledGrantTypes, GrantTypePassword)
			},
			wantErr: true,
		},
		{
			name: "password grant with verifier",
			mutate: func(c *Config) {
				c.EnabledGrantTypes = append(c.EnabledGrantTypes, GrantTypePassword)
				c.PasswordVerifier = PasswordVerifierFunc(func(ctx context.Context, username, password string) (string, error) {
					return "subject", nil
				})
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
