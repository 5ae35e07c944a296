package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-engine/storage"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// MustHashSecret hashes a client secret with bcrypt at MinCost so tests stay
// fast. Panics on failure.
func MustHashSecret(secret string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("failed to hash secret: %v", err))
	}
	return hash
}

// GenerateTestClient creates a confidential test client whose secret is
// "test-secret".
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ID:           "test-client-id",
		SecretHash:   MustHashSecret("test-secret"),
		Type:         storage.ClientTypeConfidential,
		Name:         "Test Client",
		RedirectURIs: []string{"https://example.com/callback"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Scopes:       []string{"openid", "email", "profile"},
		CreatedAt:    time.Now(),
	}
}

// GenerateTestPublicClient creates a public test client.
func GenerateTestPublicClient() *storage.Client {
	return &storage.Client{
		ID:           "test-public-client",
		Type:         storage.ClientTypePublic,
		Name:         "Test Public Client",
		RedirectURIs: []string{"https://example.com/callback"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Scopes:       []string{"openid", "email", "profile"},
		CreatedAt:    time.Now(),
	}
}

// GenerateTestGrant creates a test authorization grant carrying an S256 PKCE
// challenge. The matching verifier is discarded; use GeneratePKCEPair when the
// test needs both halves.
func GenerateTestGrant() *storage.AuthorizationGrant {
	challenge, _ := GeneratePKCEPair()
	return &storage.AuthorizationGrant{
		Code:                GenerateRandomString(32),
		ClientID:            "test-client-id",
		Subject:             "test-user-123",
		RedirectURI:         "https://example.com/callback",
		Scope:               "openid email profile",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		CreatedAt:           time.Now(),
		ExpiresAt:           time.Now().Add(10 * time.Minute),
	}
}

// GenerateTestAccessToken creates a test access token record.
func GenerateTestAccessToken() *storage.AccessToken {
	return &storage.AccessToken{
		Token:     GenerateRandomString(32),
		ClientID:  "test-client-id",
		Subject:   "test-user-123",
		Scope:     "openid email profile",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
}

// GenerateTestRefreshToken creates a test refresh token record in a fresh family.
func GenerateTestRefreshToken() *storage.RefreshToken {
	return &storage.RefreshToken{
		Token:      GenerateRandomString(32),
		ClientID:   "test-client-id",
		Subject:    "test-user-123",
		Scope:      "openid email profile",
		FamilyID:   GenerateRandomString(16),
		Generation: 1,
		IssuedAt:   time.Now(),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
}

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid PKCE challenge and verifier pair for testing.
// Returns (challenge, verifier) where challenge is the S256 hash of the verifier.
// This is a convenience helper to reduce code duplication in PKCE tests.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = GenerateRandomString(50)
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return challenge, verifier
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}
