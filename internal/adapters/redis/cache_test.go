package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "listing_sync/internal/adapters/redis"
)

type payload struct {
	Token string `json:"token"`
	N     int    `json:"n"`
}

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return redisad.NewWithClient(c, "test:"), mr
}

func TestCache_SetGetDel(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	var got payload
	ok, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", payload{Token: "abc", N: 3}, 60))
	assert.True(t, mr.Exists("test:k"))

	ok, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Token: "abc", N: 3}, got)

	require.NoError(t, cache.Del(ctx, "k"))
	ok, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TTLExpires(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", payload{N: 1}, 10))
	mr.FastForward(11 * time.Second)

	var got payload
	ok, err := cache.Get(ctx, "short", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CorruptValue(t *testing.T) {
	cache, mr := newCache(t)
	require.NoError(t, mr.Set("test:bad", "{not json"))

	var got payload
	ok, err := cache.Get(context.Background(), "bad", &got)
	assert.Error(t, err)
	assert.False(t, ok)
}
