package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisClientFrom(client), mr
}

func TestRedisClient_SetGetDel(t *testing.T) {
	t.Parallel()

	rc, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "auth_abc", "u1", time.Hour))

	got, err := rc.Get(ctx, "auth_abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)
	assert.Equal(t, time.Hour, mr.TTL("auth_abc"))

	require.NoError(t, rc.Del(ctx, "auth_abc"))
	assert.ErrorIs(t, rc.Del(ctx, "auth_abc"), ErrNotFound)

	_, err = rc.Get(ctx, "auth_abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisClient_Expiry(t *testing.T) {
	t.Parallel()

	rc, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	_, err := rc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisClient_Identity(t *testing.T) {
	t.Parallel()

	rc, mr := newTestRedis(t)
	ctx := context.Background()

	got, err := rc.GetIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	identity := &models.Identity{ID: "u1", Email: "bob@dylan.com"}
	require.NoError(t, rc.SetIdentity(ctx, identity))
	assert.Equal(t, IdentityCacheTTL, mr.TTL("user:u1"))

	got, err = rc.GetIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestRedisClient_Ping(t *testing.T) {
	t.Parallel()

	rc, mr := newTestRedis(t)
	require.NoError(t, rc.Ping(context.Background()))

	mr.Close()
	assert.Error(t, rc.Ping(context.Background()))
}
