package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheWithClient(client, time.Minute)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestRegistrationCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, found, err := cache.GetRegistered(context.Background(), "pb1addr")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistrationCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetRegistered(ctx, "pb1yes", true))
	require.NoError(t, cache.SetRegistered(ctx, "pb1no", false))

	registered, found, err := cache.GetRegistered(ctx, "pb1yes")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, registered)

	registered, found, err = cache.GetRegistered(ctx, "pb1no")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, registered)
}

func TestRegistrationCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetRegistered(ctx, "pb1addr", true))
	require.NoError(t, cache.InvalidateRegistration(ctx, "pb1addr"))

	_, found, err := cache.GetRegistered(ctx, "pb1addr")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistrationCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetRegistered(ctx, "pb1addr", true))
	mr.FastForward(2 * time.Minute)

	_, found, err := cache.GetRegistered(ctx, "pb1addr")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistrationCachePing(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, cache.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}
