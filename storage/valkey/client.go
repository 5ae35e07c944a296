package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth2-engine/storage"
)

// clientJSON is the JSON representation of a registered client
type clientJSON struct {
	ID           string   `json:"id"`
	SecretHash   []byte   `json:"secret_hash,omitempty"`
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	GrantTypes   []string `json:"grant_types,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	CreatedAt    int64    `json:"created_at"`
}

func toClientJSON(client *storage.Client) *clientJSON {
	j := &clientJSON{
		ID:           client.ID,
		SecretHash:   client.SecretHash,
		Type:         client.Type,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		GrantTypes:   client.GrantTypes,
		Scopes:       client.Scopes,
	}
	if !client.CreatedAt.IsZero() {
		j.CreatedAt = client.CreatedAt.Unix()
	}
	return j
}

func fromClientJSON(j *clientJSON) *storage.Client {
	if j == nil {
		return nil
	}
	client := &storage.Client{
		ID:           j.ID,
		SecretHash:   j.SecretHash,
		Type:         j.Type,
		Name:         j.Name,
		RedirectURIs: j.RedirectURIs,
		GrantTypes:   j.GrantTypes,
		Scopes:       j.Scopes,
	}
	if j.CreatedAt != 0 {
		client.CreatedAt = time.Unix(j.CreatedAt, 0)
	}
	return client
}

// SaveClient saves a client record, replacing any existing record with the
// same ID. Client records have no TTL.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	if client.ID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if err := validateStringLength(client.ID, MaxIDLength, "client ID"); err != nil {
		return err
	}

	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	if len(data) > MaxRecordSize {
		return errInputTooLarge
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.clientKey(client.ID)).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ID, "type", client.Type)
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if err := validateStringLength(clientID, MaxIDLength, "client ID"); err != nil {
		return nil, err
	}

	return getAndUnmarshal[clientJSON, storage.Client](
		ctx, s, s.clientKey(clientID), storage.ErrClientNotFound, fromClientJSON)
}

// DeleteClient removes a client record.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	if err := validateStringLength(clientID, MaxIDLength, "client ID"); err != nil {
		return err
	}

	deleted, err := s.client.Do(ctx,
		s.client.B().Del().Key(s.clientKey(clientID)).Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}

	s.logger.Debug("Deleted client", "client_id", clientID)
	return nil
}

// ListClients returns all registered clients. Not part of storage.ClientStore;
// exposed for administrative tooling.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	pattern := s.prefix + "client:*"

	// SCAN can return duplicate keys across iterations
	seen := make(map[string]struct{})
	var clients []*storage.Client

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan clients: %w", err)
		}

		for _, key := range result.Elements {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
			if err != nil {
				if isNilError(err) {
					continue
				}
				s.logger.Warn("Failed to read client during list", "key", key, "error", err)
				continue
			}

			var j clientJSON
			if err := json.Unmarshal([]byte(data), &j); err != nil {
				s.logger.Warn("Skipping malformed client record", "key", key)
				continue
			}
			clients = append(clients, fromClientJSON(&j))
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	return clients, nil
}
