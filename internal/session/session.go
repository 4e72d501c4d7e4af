// Package session issues and resolves opaque bearer tokens backed by a
// key-value store with expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/storage"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "auth_"

// ErrNotFound is returned for unknown or expired tokens.
var ErrNotFound = errors.New("session: token not found")

// KV is the key-value store holding sessions.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// Store maps tokens to user ids.
type Store struct {
	kv  KV
	ttl time.Duration
}

// NewStore returns a Store whose tokens expire after ttl; a non-positive ttl
// means DefaultTTL.
func NewStore(kv KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Issue creates a fresh token for userID.
func (s *Store) Issue(ctx context.Context, userID string) (string, error) {
	token := uuid.New().String()
	if err := s.kv.Set(ctx, key(token), userID, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Lookup returns the user id bound to token.
func (s *Store) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}

	userID, err := s.kv.Get(ctx, key(token))
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return userID, nil
}

// Revoke deletes token. Revoking an unknown token returns ErrNotFound.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotFound
	}

	err := s.kv.Del(ctx, key(token))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func key(token string) string {
	return keyPrefix + token
}
