package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// IdentityCacheTTL is the time-to-live for cached user identities (5 minutes)
	IdentityCacheTTL = 5 * time.Minute

	connectAttempts = 5
)

// RedisClient wraps Redis operations with tracing. It serves as the session
// key-value store, the identity cache and the transport of the job queue.
type RedisClient struct {
	client redis.UniversalClient
}

// NewRedisClient initializes a new Redis client, retrying the initial ping
// with exponential backoff.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectAttempts), ctx)
	if err := backoff.Retry(func() error { return client.Ping(ctx).Err() }, b); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFrom wraps an existing client.
func NewRedisClientFrom(client redis.UniversalClient) *RedisClient {
	return &RedisClient{client: client}
}

// Client exposes the underlying client to the job queue.
func (rc *RedisClient) Client() redis.UniversalClient {
	return rc.client
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Ping checks connectivity.
func (rc *RedisClient) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.ping")
	defer span.End()

	if err := rc.client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Set stores value under key with the given expiry.
func (rc *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.set",
		trace.WithAttributes(
			attribute.Int64("ttl_seconds", int64(ttl.Seconds())),
		),
	)
	defer span.End()

	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (rc *RedisClient) Get(ctx context.Context, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "redis.get")
	defer span.End()

	value, err := rc.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("found", false))
		return "", ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return value, nil
}

// Del removes key and returns ErrNotFound if it did not exist.
func (rc *RedisClient) Del(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "redis.del")
	defer span.End()

	n, err := rc.client.Del(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIdentity retrieves a cached identity. A miss returns nil, nil.
func (rc *RedisClient) GetIdentity(ctx context.Context, userID string) (*models.Identity, error) {
	ctx, span := tracer.Start(ctx, "redis.get_identity",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, identityKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.String("cache_status", "miss"))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(data), &identity); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	span.SetAttributes(attribute.String("cache_status", "hit"))
	return &identity, nil
}

// SetIdentity caches an identity for IdentityCacheTTL.
func (rc *RedisClient) SetIdentity(ctx context.Context, identity *models.Identity) error {
	ctx, span := tracer.Start(ctx, "redis.set_identity",
		trace.WithAttributes(
			attribute.String("user_id", identity.ID),
		),
	)
	defer span.End()

	data, err := json.Marshal(identity)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := rc.client.Set(ctx, identityKey(identity.ID), data, IdentityCacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func identityKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}
