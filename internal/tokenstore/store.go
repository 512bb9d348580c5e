// Package tokenstore is a namespaced, expiring key-value cache for per-user platform state.
//
// Entries disappear when their TTL elapses; a missing entry is indistinguishable from one that
// was never written. The store does not serialize read-modify-write sequences.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-studio/backend/internal/models"
)

// Namespace separates independently evicted key spaces.
type Namespace string

const (
	NamespaceOAuth     Namespace = "oauth:token"
	NamespaceStats     Namespace = "stats"
	NamespaceAnalytics Namespace = "analytics"
)

// ErrMiss is returned by Backend.Get for absent keys.
var ErrMiss = errors.New("tokenstore: miss")

// Backend is the raw byte store. RedisBackend is the production implementation.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisBackend adapts a go-redis client to Backend.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return v, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// Store reads and writes JSON values under namespaced keys. Values in the OAuth namespace are
// sealed when a Sealer is configured.
type Store struct {
	backend Backend
	sealer  *Sealer
	logger  *zap.Logger
}

// New creates a Store. sealer may be nil to store bundles in plaintext.
func New(backend Backend, sealer *Sealer, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, sealer: sealer, logger: logger}
}

func key(ns Namespace, id string) string {
	return string(ns) + ":" + id
}

// GetBundle returns the user's credential bundle, or (nil, nil) when absent.
func (s *Store) GetBundle(ctx context.Context, userID string) (*models.CredentialBundle, error) {
	raw, err := s.backend.Get(ctx, key(NamespaceOAuth, userID))
	if errors.Is(err, ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	if s.sealer != nil {
		raw, err = s.sealer.Open(raw)
		if err != nil {
			// An unreadable bundle is as good as absent; the user re-authorizes.
			s.logger.Warn("discarding unreadable credential bundle", zap.String("user_id", userID), zap.Error(err))
			_ = s.backend.Del(ctx, key(NamespaceOAuth, userID))
			return nil, nil
		}
	}
	var b models.CredentialBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// SetBundle writes the user's bundle so that it expires after ttl.
func (s *Store) SetBundle(ctx context.Context, userID string, b *models.CredentialBundle, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("set bundle: ttl must be positive, got %s", ttl)
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if s.sealer != nil {
		if raw, err = s.sealer.Seal(raw); err != nil {
			return fmt.Errorf("seal bundle: %w", err)
		}
	}
	if err := s.backend.Set(ctx, key(NamespaceOAuth, userID), raw, ttl); err != nil {
		return fmt.Errorf("set bundle: %w", err)
	}
	return nil
}

// InvalidateBundle removes the user's bundle.
func (s *Store) InvalidateBundle(ctx context.Context, userID string) error {
	if err := s.backend.Del(ctx, key(NamespaceOAuth, userID)); err != nil {
		return fmt.Errorf("invalidate bundle: %w", err)
	}
	return nil
}

// GetJSON decodes the cached value under ns/id into dst and reports whether it was present.
func (s *Store) GetJSON(ctx context.Context, ns Namespace, id string, dst any) (bool, error) {
	raw, err := s.backend.Get(ctx, key(ns, id))
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", ns, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", ns, err)
	}
	return true, nil
}

// SetJSON caches v under ns/id for ttl.
func (s *Store) SetJSON(ctx context.Context, ns Namespace, id string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ns, err)
	}
	if err := s.backend.Set(ctx, key(ns, id), raw, ttl); err != nil {
		return fmt.Errorf("set %s: %w", ns, err)
	}
	return nil
}

// Delete removes ns/id.
func (s *Store) Delete(ctx context.Context, ns Namespace, id string) error {
	return s.backend.Del(ctx, key(ns, id))
}
