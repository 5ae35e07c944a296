package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
)

// grantJSON is the JSON representation of an authorization grant. The
// expires_at and consumed fields are read and written by luaConsumeGrant and
// must keep these names.
type grantJSON struct {
	Code                string `json:"code"`
	ClientID            string `json:"client_id"`
	Subject             string `json:"subject"`
	RedirectURI         string `json:"redirect_uri,omitempty"`
	Scope               string `json:"scope,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	CreatedAt           int64  `json:"created_at"`
	ExpiresAt           int64  `json:"expires_at"`
	Consumed            bool   `json:"consumed"`
}

func toGrantJSON(grant *storage.AuthorizationGrant) *grantJSON {
	j := &grantJSON{
		Code:                grant.Code,
		ClientID:            grant.ClientID,
		Subject:             grant.Subject,
		RedirectURI:         grant.RedirectURI,
		Scope:               grant.Scope,
		CodeChallenge:       grant.CodeChallenge,
		CodeChallengeMethod: grant.CodeChallengeMethod,
		Consumed:            grant.Consumed,
	}
	if !grant.CreatedAt.IsZero() {
		j.CreatedAt = grant.CreatedAt.Unix()
	}
	if !grant.ExpiresAt.IsZero() {
		j.ExpiresAt = grant.ExpiresAt.Unix()
	}
	return j
}

func fromGrantJSON(j *grantJSON) *storage.AuthorizationGrant {
	if j == nil {
		return nil
	}
	grant := &storage.AuthorizationGrant{
		Code:                j.Code,
		ClientID:            j.ClientID,
		Subject:             j.Subject,
		RedirectURI:         j.RedirectURI,
		Scope:               j.Scope,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		Consumed:            j.Consumed,
	}
	if j.CreatedAt != 0 {
		grant.CreatedAt = time.Unix(j.CreatedAt, 0)
	}
	if j.ExpiresAt != 0 {
		grant.ExpiresAt = time.Unix(j.ExpiresAt, 0)
	}
	return grant
}

// decodeGrant unmarshals a stored grant record and decrypts its subject.
func (s *Store) decodeGrant(data []byte) (*storage.AuthorizationGrant, error) {
	var j grantJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization grant: %w", err)
	}
	grant := fromGrantJSON(&j)

	subject, err := s.decryptSubject(grant.Subject)
	if err != nil {
		return nil, err
	}
	grant.Subject = subject
	return grant, nil
}

// SaveGrant saves an issued authorization grant with a TTL derived from its
// expiry. Grants without an expiry are rejected.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.AuthorizationGrant) error {
	if grant == nil {
		return fmt.Errorf("authorization grant cannot be nil")
	}
	if grant.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}
	if err := validateStringLength(grant.Code, MaxTokenLength, "authorization code"); err != nil {
		return err
	}
	if err := validateStringLength(grant.ClientID, MaxIDLength, "client ID"); err != nil {
		return err
	}
	if err := validateStringLength(grant.Subject, MaxIDLength, "subject"); err != nil {
		return err
	}
	if grant.ExpiresAt.IsZero() {
		return fmt.Errorf("authorization grant requires an expiry")
	}
	if security.IsExpired(grant.ExpiresAt, time.Now()) {
		return fmt.Errorf("authorization grant is already expired")
	}

	j := toGrantJSON(grant)
	subject, err := s.encryptSubject(j.Subject)
	if err != nil {
		return err
	}
	j.Subject = subject

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization grant: %w", err)
	}
	if len(data) > MaxRecordSize {
		return errInputTooLarge
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().
			Key(s.grantKey(grant.Code)).
			Value(string(data)).
			Ex(calculateTTL(grant.ExpiresAt)).
			Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save authorization grant: %w", err)
	}

	s.logger.Debug("Saved authorization grant",
		"code_prefix", util.SafeTruncate(grant.Code, tokenLogPrefixLen),
		"client_id", grant.ClientID)
	return nil
}

// GetGrant retrieves a grant by its code without consuming it.
func (s *Store) GetGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	if err := validateStringLength(code, MaxTokenLength, "authorization code"); err != nil {
		return nil, err
	}

	data, err := s.client.Do(ctx,
		s.client.B().Get().Key(s.grantKey(code)).Build(),
	).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get authorization grant: %w", err)
	}

	grant, err := s.decodeGrant([]byte(data))
	if err != nil {
		return nil, err
	}

	// The TTL normally reaps expired grants; double-check the stored expiry.
	if security.IsExpired(grant.ExpiresAt, time.Now()) {
		return nil, fmt.Errorf("%w: grant expired", storage.ErrGrantNotFound)
	}

	return grant, nil
}

// ConsumeGrant atomically checks that the grant is unconsumed and marks it
// consumed via a Lua script. Exactly one concurrent caller receives the grant
// with a nil error; every other caller receives ErrGrantConsumed together
// with the stored grant so replay can be detected and acted on.
func (s *Store) ConsumeGrant(ctx context.Context, code string) (*storage.AuthorizationGrant, error) {
	if err := validateStringLength(code, MaxTokenLength, "authorization code"); err != nil {
		return nil, err
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().
			Script(luaConsumeGrant).
			Numkeys(1).
			Key(s.grantKey(code)).
			Arg(fmt.Sprintf("%d", graceAdjustedUnix(time.Now()))).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization grant: %w", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrGrantNotFound

	case result == "EXPIRED":
		return nil, fmt.Errorf("%w: grant expired", storage.ErrGrantNotFound)

	case strings.HasPrefix(result, "ALREADY_CONSUMED:"):
		data := strings.TrimPrefix(result, "ALREADY_CONSUMED:")
		grant, decodeErr := s.decodeGrant([]byte(data))
		if decodeErr != nil {
			s.logger.Error("Failed to decode consumed grant during replay handling",
				"code_prefix", util.SafeTruncate(code, tokenLogPrefixLen),
				"error", decodeErr)
			return nil, storage.ErrGrantConsumed
		}
		return grant, storage.ErrGrantConsumed

	default:
		// The script returns the pre-mark JSON on success.
		grant, decodeErr := s.decodeGrant([]byte(result))
		if decodeErr != nil {
			return nil, decodeErr
		}
		grant.Consumed = true

		s.logger.Debug("Consumed authorization grant",
			"code_prefix", util.SafeTruncate(code, tokenLogPrefixLen))
		return grant, nil
	}
}

// DeleteGrant removes a grant. Deleting a missing grant is not an error.
func (s *Store) DeleteGrant(ctx context.Context, code string) error {
	if err := validateStringLength(code, MaxTokenLength, "authorization code"); err != nil {
		return err
	}

	if err := s.client.Do(ctx,
		s.client.B().Del().Key(s.grantKey(code)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to delete authorization grant: %w", err)
	}

	s.logger.Debug("Deleted authorization grant")
	return nil
}
