package valkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/giantswarm/oauth2-engine/internal/util"
	"github.com/giantswarm/oauth2-engine/storage"
)

// Member prefixes distinguish token types inside the subject+client index
// set, since access and refresh token values share one member namespace.
const (
	memberPrefixAccess  = "access:"
	memberPrefixRefresh = "refresh:"
)

// indexAccessToken adds an access token to the subject+client index. Tokens
// without a subject (client_credentials) are not indexed.
func (s *Store) indexAccessToken(ctx context.Context, token *storage.AccessToken, ttl time.Duration) {
	s.addUserClientMember(ctx, token.Subject, token.ClientID, memberPrefixAccess+token.Token, ttl)
}

// indexRefreshToken adds a refresh token to the subject+client index and to
// its family set.
func (s *Store) indexRefreshToken(ctx context.Context, token *storage.RefreshToken, ttl time.Duration) {
	s.addUserClientMember(ctx, token.Subject, token.ClientID, memberPrefixRefresh+token.Token, ttl)
	s.addFamilyMember(ctx, token.FamilyID, token.Token, ttl)
}

// addUserClientMember adds a typed token reference to the subject+client set.
// Index maintenance is best effort: a failure here degrades bulk revocation,
// not token issuance.
func (s *Store) addUserClientMember(ctx context.Context, subject, clientID, member string, ttl time.Duration) {
	if subject == "" || clientID == "" {
		return
	}

	key := s.userClientKey(subject, clientID)
	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(key).Member(member).Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to index token for subject and client",
			"client_id", clientID, "error", err)
		return
	}

	// GT so a short-lived access token cannot shorten the index lifetime.
	if err := s.client.Do(ctx,
		s.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Gt().Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to refresh subject index TTL",
			"client_id", clientID, "error", err)
	}
}

// addFamilyMember adds a refresh token value to its family set.
func (s *Store) addFamilyMember(ctx context.Context, familyID, token string, ttl time.Duration) {
	if familyID == "" {
		return
	}

	key := s.familyKey(familyID)
	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(key).Member(token).Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to index refresh token family",
			"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen), "error", err)
		return
	}

	if err := s.client.Do(ctx,
		s.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Gt().Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to refresh family index TTL",
			"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen), "error", err)
	}
}

// RevokeTokenFamily revokes every refresh token in a family along with the
// access tokens paired to them. Called when refresh token reuse is detected.
// Returns the number of tokens newly revoked.
//
// Per-member failures are logged and skipped so one unreadable record cannot
// leave the rest of a compromised family live.
func (s *Store) RevokeTokenFamily(ctx context.Context, familyID string) (int, error) {
	if familyID == "" {
		return 0, fmt.Errorf("family ID cannot be empty")
	}
	if err := validateStringLength(familyID, MaxIDLength, "family ID"); err != nil {
		return 0, err
	}

	members, err := s.client.Do(ctx,
		s.client.B().Smembers().Key(s.familyKey(familyID)).Build(),
	).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("failed to load token family: %w", err)
	}

	revoked := 0
	for _, token := range members {
		// Read the record first so the paired access token can be revoked too.
		record, getErr := s.GetRefreshToken(ctx, token)
		if getErr != nil && !errors.Is(getErr, storage.ErrTokenNotFound) && !errors.Is(getErr, storage.ErrTokenExpired) {
			s.logger.Warn("Failed to load refresh token during family revocation",
				"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen),
				"error", getErr)
		}

		newly, revokeErr := s.markRevoked(ctx, s.refreshTokenKey(token), "refresh token")
		if revokeErr != nil && !errors.Is(revokeErr, storage.ErrTokenNotFound) {
			s.logger.Warn("Failed to revoke family member",
				"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen),
				"error", revokeErr)
		}
		if newly {
			revoked++
		}

		if record == nil || record.AccessToken == "" {
			continue
		}
		newly, revokeErr = s.markRevoked(ctx, s.accessTokenKey(record.AccessToken), "access token")
		if revokeErr != nil && !errors.Is(revokeErr, storage.ErrTokenNotFound) {
			s.logger.Warn("Failed to revoke paired access token",
				"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen),
				"error", revokeErr)
		}
		if newly {
			revoked++
		}
	}

	if revoked > 0 {
		s.logger.Warn("Revoked refresh token family due to reuse detection",
			"family_id", util.SafeTruncate(familyID, tokenLogPrefixLen),
			"tokens_revoked", revoked)
	}

	return revoked, nil
}

// RevokeUserClientTokens revokes all access and refresh tokens issued to the
// given subject and client combination. Returns the number of tokens newly
// revoked. Called when authorization code replay is detected.
func (s *Store) RevokeUserClientTokens(ctx context.Context, subject, clientID string) (int, error) {
	if subject == "" || clientID == "" {
		return 0, fmt.Errorf("subject and clientID cannot be empty")
	}
	if err := validateStringLength(subject, MaxIDLength, "subject"); err != nil {
		return 0, err
	}
	if err := validateStringLength(clientID, MaxIDLength, "client ID"); err != nil {
		return 0, err
	}

	key := s.userClientKey(subject, clientID)
	members, err := s.client.Do(ctx,
		s.client.B().Smembers().Key(key).Build(),
	).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("failed to load subject token index: %w", err)
	}

	revoked := 0
	for _, member := range members {
		var recordKey, kind string
		switch {
		case strings.HasPrefix(member, memberPrefixAccess):
			recordKey = s.accessTokenKey(strings.TrimPrefix(member, memberPrefixAccess))
			kind = "access token"
		case strings.HasPrefix(member, memberPrefixRefresh):
			recordKey = s.refreshTokenKey(strings.TrimPrefix(member, memberPrefixRefresh))
			kind = "refresh token"
		default:
			s.logger.Warn("Skipping unrecognized token index member",
				"member_prefix", util.SafeTruncate(member, tokenLogPrefixLen))
			continue
		}

		newly, revokeErr := s.markRevoked(ctx, recordKey, kind)
		if revokeErr != nil && !errors.Is(revokeErr, storage.ErrTokenNotFound) {
			s.logger.Warn("Failed to revoke indexed token",
				"client_id", clientID, "error", revokeErr)
		}
		if newly {
			revoked++
		}
	}

	// The index only tracks live tokens; after a bulk revocation it is stale.
	if err := s.client.Do(ctx,
		s.client.B().Del().Key(key).Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to delete subject token index",
			"client_id", clientID, "error", err)
	}

	if revoked > 0 {
		s.logger.Warn("Revoked all tokens for subject and client",
			"client_id", clientID,
			"tokens_revoked", revoked,
			"reason", "authorization_code_replay_detected")
	}

	return revoked, nil
}
