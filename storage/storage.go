package storage

import (
	"context"
	"time"
)

// Client types.
const (
	// ClientTypeConfidential clients hold a secret and must authenticate at
	// the token endpoint.
	ClientTypeConfidential = "confidential"

	// ClientTypePublic clients cannot keep a secret (native apps, SPAs) and
	// authenticate by client_id alone, relying on PKCE for the code flow.
	ClientTypePublic = "public"
)

// ClientStore defines the interface for managing registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a client record, replacing any existing record with
	// the same ID.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID.
	// Returns ErrClientNotFound if no client exists.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// DeleteClient removes a client record.
	// Returns ErrClientNotFound if no client exists.
	DeleteClient(ctx context.Context, clientID string) error
}

// GrantStore defines the interface for managing authorization grants between
// the authorize step and the token exchange.
// All methods accept context.Context for tracing and cancellation.
type GrantStore interface {
	// SaveGrant saves an issued authorization grant.
	SaveGrant(ctx context.Context, grant *AuthorizationGrant) error

	// GetGrant retrieves a grant by its code without consuming it.
	// Returns ErrGrantNotFound if no grant exists or the grant has expired.
	GetGrant(ctx context.Context, code string) (*AuthorizationGrant, error)

	// ConsumeGrant atomically checks that the grant is unconsumed and marks
	// it consumed. Exactly one concurrent caller receives the grant with a
	// nil error; every other caller receives ErrGrantConsumed together with
	// the stored grant so replay can be detected and acted on.
	// Returns ErrGrantNotFound if no grant exists or the grant has expired.
	// SECURITY: This operation MUST be atomic to prevent concurrent code
	// exchange attacks.
	ConsumeGrant(ctx context.Context, code string) (*AuthorizationGrant, error)

	// DeleteGrant removes a grant.
	DeleteGrant(ctx context.Context, code string) error
}

// TokenStore defines the interface for storing issued access and refresh
// tokens. Save operations are upserts keyed by token value.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken saves an access token record.
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves an access token record by value. Revoked
	// records are returned with Revoked set.
	// Returns ErrTokenNotFound if no record exists, ErrTokenExpired if the
	// record exists but its expiry has passed.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// RevokeAccessToken marks an access token as revoked. Revoking an
	// already revoked token is a no-op.
	// Returns ErrTokenNotFound if no record exists.
	RevokeAccessToken(ctx context.Context, token string) error

	// SaveRefreshToken saves a refresh token record.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token record by value. Revoked
	// records are returned with Revoked set.
	// Returns ErrTokenNotFound if no record exists, ErrTokenExpired if the
	// record exists but its expiry has passed.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// RevokeRefreshToken marks a refresh token as revoked. Revoking an
	// already revoked token is a no-op.
	// Returns ErrTokenNotFound if no record exists.
	RevokeRefreshToken(ctx context.Context, token string) error
}

// Store composes the interfaces the engine requires from a backend.
type Store interface {
	ClientStore
	GrantStore
	TokenStore
}

// RefreshTokenConsumer is an optional capability for stores that can
// atomically consume a refresh token during rotation.
type RefreshTokenConsumer interface {
	// ConsumeRefreshToken atomically checks that the refresh token is valid
	// and marks it revoked so it cannot be used again. Exactly one
	// concurrent caller receives the record with a nil error; every other
	// caller receives ErrTokenRevoked together with the stored record so
	// reuse can be detected and the token family revoked.
	// Returns ErrTokenNotFound if no record exists, ErrTokenExpired if the
	// record exists but its expiry has passed.
	// SECURITY: This operation MUST be atomic to prevent concurrent refresh
	// attacks.
	ConsumeRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
}

// FamilyRevoker is an optional capability for stores that track refresh
// token families for reuse detection.
type FamilyRevoker interface {
	// RevokeTokenFamily revokes every refresh token in a family along with
	// the access tokens paired to them. Called when refresh token reuse is
	// detected. Returns the number of tokens revoked.
	RevokeTokenFamily(ctx context.Context, familyID string) (int, error)
}

// PairSaver is an optional capability for stores that can persist an access
// and refresh token in a single atomic step, so a crash between the two
// writes cannot leave a refresh token without its access token.
type PairSaver interface {
	// SaveTokenPair saves an access token and its paired refresh token
	// atomically.
	SaveTokenPair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error
}

// UserClientRevoker is an optional capability for bulk revocation of all
// tokens held by one subject at one client. Used when authorization code
// replay is detected.
type UserClientRevoker interface {
	// RevokeUserClientTokens revokes all access and refresh tokens issued to
	// the given subject and client combination. Returns the number of tokens
	// revoked.
	RevokeUserClientTokens(ctx context.Context, subject, clientID string) (int, error)
}

// Client represents a registered OAuth client.
type Client struct {
	ID           string    `json:"id"`
	SecretHash   []byte    `json:"secret_hash,omitempty"` // bcrypt hash, empty for public clients
	Type         string    `json:"type"`                  // ClientTypeConfidential or ClientTypePublic
	Name         string    `json:"name,omitempty"`
	RedirectURIs []string  `json:"redirect_uris,omitempty"`
	GrantTypes   []string  `json:"grant_types,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsPublic reports whether the client is a public client.
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// HasGrantType reports whether the client is registered for the grant type.
func (c *Client) HasGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthorizationGrant represents an issued authorization code awaiting
// exchange at the token endpoint.
type AuthorizationGrant struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	Subject             string    `json:"subject"`
	RedirectURI         string    `json:"redirect_uri,omitempty"`
	Scope               string    `json:"scope,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Consumed            bool      `json:"consumed"`
}

// AccessToken represents an issued access token. For self-contained tokens
// the Token field holds the JWT ID rather than the full token string.
type AccessToken struct {
	Token        string    `json:"token"`
	ClientID     string    `json:"client_id"`
	Subject      string    `json:"subject,omitempty"` // empty for client_credentials tokens
	Scope        string    `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"` // paired refresh token value, if any
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Revoked      bool      `json:"revoked"`
}

// RefreshToken represents an issued refresh token. FamilyID groups every
// token descended from one initial issuance; Generation counts rotations
// within the family, starting at 1.
type RefreshToken struct {
	Token       string    `json:"token"`
	ClientID    string    `json:"client_id"`
	Subject     string    `json:"subject,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	AccessToken string    `json:"access_token,omitempty"` // paired access token value
	FamilyID    string    `json:"family_id,omitempty"`
	Generation  int       `json:"generation,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Revoked     bool      `json:"revoked"`
}
