package rag

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey(3, "What is  the Refund window?"), CacheKey(3, " what is the refund window? "))
	assert.NotEqual(t, CacheKey(3, "refund"), CacheKey(4, "refund"))
	assert.NotEqual(t, CacheKey(3, "refund"), CacheKey(3, "shipping"))
	assert.Len(t, CacheKey(1, "x"), 64)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", &Answer{Answer: "a"})
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "a", got.Answer)

	// Callers may modify what they get back.
	got.Answer = "changed"
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "a", again.Answer)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryCacheBounded(t *testing.T) {
	c := NewMemoryCache(time.Hour, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "a", &Answer{})
	now = now.Add(time.Second)
	c.Set(ctx, "b", &Answer{})
	now = now.Add(time.Second)
	c.Set(ctx, "c", &Answer{})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry is evicted")
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379", DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skip("redis not available")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisCache(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	c := NewRedisCache(client, time.Minute, "chaxai:test:")
	key := CacheKey(1, "refund window")
	t.Cleanup(func() { client.Del(ctx, "chaxai:test:"+key) })

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, &Answer{Answer: "30 days", Sources: []string{"refunds.md"}})
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "30 days", got.Answer)
	assert.Equal(t, []string{"refunds.md"}, got.Sources)

	ttl, err := client.TTL(ctx, "chaxai:test:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
