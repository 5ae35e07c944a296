package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	return key
}

func testClaims(now time.Time) Claims {
	return Claims{
		ID:        "token-id-1",
		Issuer:    "https://auth.example.com",
		Subject:   "user-1",
		ClientID:  "client-1",
		Audience:  []string{"https://api.example.com"},
		Scope:     "read write",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestJWTCodec_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := NewJWTCodec(testKey(t), WithNowFunc(func() time.Time { return now }))

	in := testClaims(now)
	raw, err := codec.Mint(in)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if parts := strings.Split(raw, "."); len(parts) != 3 {
		t.Fatalf("Mint() produced %d segments, want 3", len(strings.Split(raw, ".")))
	}

	out, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if out.ID != in.ID {
		t.Errorf("ID = %q, want %q", out.ID, in.ID)
	}
	if out.Issuer != in.Issuer {
		t.Errorf("Issuer = %q, want %q", out.Issuer, in.Issuer)
	}
	if out.Subject != in.Subject {
		t.Errorf("Subject = %q, want %q", out.Subject, in.Subject)
	}
	if out.ClientID != in.ClientID {
		t.Errorf("ClientID = %q, want %q", out.ClientID, in.ClientID)
	}
	if !reflect.DeepEqual(out.Audience, in.Audience) {
		t.Errorf("Audience = %v, want %v", out.Audience, in.Audience)
	}
	if out.Scope != in.Scope {
		t.Errorf("Scope = %q, want %q", out.Scope, in.Scope)
	}
	if !out.IssuedAt.Equal(in.IssuedAt) {
		t.Errorf("IssuedAt = %v, want %v", out.IssuedAt, in.IssuedAt)
	}
	if !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", out.ExpiresAt, in.ExpiresAt)
	}
}

func TestJWTCodecHS256_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := NewJWTCodecHS256([]byte("0123456789abcdef0123456789abcdef"),
		WithNowFunc(func() time.Time { return now }))

	in := testClaims(now)
	raw, err := codec.Mint(in)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	out, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Subject != in.Subject || out.Scope != in.Scope {
		t.Errorf("Decode() = {Subject: %q, Scope: %q}, want {%q, %q}", out.Subject, out.Scope, in.Subject, in.Scope)
	}
}

func TestJWTCodec_DecodeExpired(t *testing.T) {
	now := time.Now()
	codec := NewJWTCodec(testKey(t), WithNowFunc(func() time.Time { return now }))

	claims := testClaims(now.Add(-2 * time.Hour)) // expired one hour ago
	raw, err := codec.Mint(claims)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := codec.Decode(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Decode() error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTCodec_DecodeExpiredWithinLeeway(t *testing.T) {
	now := time.Now()
	codec := NewJWTCodec(testKey(t),
		WithNowFunc(func() time.Time { return now }),
		WithLeeway(10*time.Second))

	claims := testClaims(now)
	claims.ExpiresAt = now.Add(-5 * time.Second)

	raw, err := codec.Mint(claims)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := codec.Decode(raw); err != nil {
		t.Errorf("Decode() inside leeway error = %v, want nil", err)
	}
}

func TestJWTCodec_DecodeWrongKey(t *testing.T) {
	now := time.Now()
	signer := NewJWTCodec(testKey(t), WithNowFunc(func() time.Time { return now }))
	verifier := NewJWTCodec(testKey(t), WithNowFunc(func() time.Time { return now }))

	raw, err := signer.Mint(testClaims(now))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := verifier.Decode(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Decode() with wrong key error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTCodec_RejectsForeignAlgorithm(t *testing.T) {
	now := time.Now()
	hmac := NewJWTCodecHS256([]byte("0123456789abcdef0123456789abcdef"),
		WithNowFunc(func() time.Time { return now }))
	rsaCodec := NewJWTCodec(testKey(t), WithNowFunc(func() time.Time { return now }))

	raw, err := hmac.Mint(testClaims(now))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	// An RS256 verifier must refuse HS256 tokens outright.
	if _, err := rsaCodec.Decode(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Decode() of HS256 token error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTCodec_DecodeGarbage(t *testing.T) {
	codec := NewJWTCodec(testKey(t))

	tests := []struct {
		name string
		raw  string
	}{
		{"empty string", ""},
		{"not a jwt", "opaque-token-value"},
		{"two segments", "aaaa.bbbb"},
		{"corrupt payload", "aaaa.bbbb.cccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Decode(tt.raw); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidToken", tt.raw, err)
			}
		})
	}
}
