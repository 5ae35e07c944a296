package token

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNotSelfContained is returned by Decode for codecs whose tokens carry
	// no claims of their own and must be resolved through storage.
	ErrNotSelfContained = errors.New("token is not self-contained")

	// ErrInvalidToken is returned when a self-contained token fails signature
	// or claims validation. Callers must not forward the detail to clients.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the identity and authorization data bound into an access
// token at minting time.
type Claims struct {
	// ID uniquely identifies the token (the jti claim) and keys the stored
	// record for self-contained tokens. The caller provides it.
	ID string

	Issuer   string
	Subject  string
	ClientID string
	Audience []string

	// Scope is the granted scope set in space-delimited wire form.
	Scope string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec mints access tokens and, for self-contained formats, decodes them.
//
// Mint never performs I/O. Decode verifies what the token itself can prove
// (signature, expiry, issuer); revocation state lives in storage and is the
// caller's concern.
type Codec interface {
	Mint(claims Claims) (string, error)
	Decode(token string) (*Claims, error)
}

// NewOpaque returns a cryptographically random 43-character base64url string
// carrying 256 bits of entropy. Used for opaque access tokens, refresh
// tokens, and authorization codes.
func NewOpaque() string {
	return oauth2.GenerateVerifier()
}
