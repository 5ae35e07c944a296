package token

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/oauth2-engine/security"
)

// accessClaims is the wire shape of a self-contained access token, following
// the JWT access token profile (RFC 9068).
type accessClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope,omitempty"`
}

// JWTCodec issues signed self-contained access tokens. The token value
// carries its own claims; storage holds only a revocation record keyed by
// the token id.
type JWTCodec struct {
	method    jwt.SigningMethod
	alg       string
	signKey   any
	verifyKey any
	leeway    time.Duration
	nowFunc   func() time.Time
}

// JWTOption configures a JWTCodec.
type JWTOption func(*JWTCodec)

// WithNowFunc overrides the clock used during validation. Minting timestamps
// come from the claims, not the codec clock.
func WithNowFunc(now func() time.Time) JWTOption {
	return func(c *JWTCodec) {
		c.nowFunc = now
	}
}

// WithLeeway sets the clock-skew allowance applied to time claims during
// validation. Defaults to security.DefaultClockSkewGracePeriod.
func WithLeeway(d time.Duration) JWTOption {
	return func(c *JWTCodec) {
		c.leeway = d
	}
}

// NewJWTCodec returns a codec signing with RS256. The verification key is
// derived from the private key.
func NewJWTCodec(key *rsa.PrivateKey, options ...JWTOption) *JWTCodec {
	c := &JWTCodec{
		method:    jwt.SigningMethodRS256,
		alg:       jwt.SigningMethodRS256.Alg(),
		signKey:   key,
		verifyKey: &key.PublicKey,
		leeway:    security.DefaultClockSkewGracePeriod,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewJWTCodecHS256 returns a codec signing with HS256 using a shared secret.
// RS256 is preferred when resource servers verify tokens themselves; HS256
// keeps single-party deployments simple.
func NewJWTCodecHS256(secret []byte, options ...JWTOption) *JWTCodec {
	c := &JWTCodec{
		method:    jwt.SigningMethodHS256,
		alg:       jwt.SigningMethodHS256.Alg(),
		signKey:   secret,
		verifyKey: secret,
		leeway:    security.DefaultClockSkewGracePeriod,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Mint signs the claims into a compact JWT.
func (c *JWTCodec) Mint(claims Claims) (string, error) {
	jc := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       claims.ID,
			Issuer:   claims.Issuer,
			Subject:  claims.Subject,
			Audience: jwt.ClaimStrings(claims.Audience),
		},
		ClientID: claims.ClientID,
		Scope:    claims.Scope,
	}
	if !claims.IssuedAt.IsZero() {
		jc.IssuedAt = jwt.NewNumericDate(claims.IssuedAt)
	}
	if !claims.ExpiresAt.IsZero() {
		jc.ExpiresAt = jwt.NewNumericDate(claims.ExpiresAt)
	}

	signed, err := jwt.NewWithClaims(c.method, jc).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and registered claims and returns the claims
// the token was minted with. All failures wrap ErrInvalidToken; the detail is
// for logs, never for clients.
func (c *JWTCodec) Decode(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &accessClaims{},
		func(*jwt.Token) (any, error) { return c.verifyKey, nil },
		jwt.WithValidMethods([]string{c.alg}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(func() time.Time { return c.nowFunc() }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	jc, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	out := &Claims{
		ID:       jc.ID,
		Issuer:   jc.Issuer,
		Subject:  jc.Subject,
		ClientID: jc.ClientID,
		Audience: []string(jc.Audience),
		Scope:    jc.Scope,
	}
	if jc.IssuedAt != nil {
		out.IssuedAt = jc.IssuedAt.Time
	}
	if jc.ExpiresAt != nil {
		out.ExpiresAt = jc.ExpiresAt.Time
	}
	return out, nil
}
