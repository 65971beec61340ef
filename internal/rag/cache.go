package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ziadkadry99/chaxai/internal/logging"
)

// Cache stores answers by key. Failures are treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) (*Answer, bool)
	Set(ctx context.Context, key string, ans *Answer)
}

// CacheKey derives the cache key of question against index generation gen.
// Any index mutation changes gen, so cached answers never outlive the
// content they were built from.
func CacheKey(gen uint64, question string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(strconv.FormatUint(gen, 10) + "\x00" + norm))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	items      map[string]memItem
	now        func() time.Time
}

type memItem struct {
	ans     Answer
	expires time.Time
}

// NewMemoryCache returns a cache holding at most maxEntries answers for ttl.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{ttl: ttl, maxEntries: maxEntries, items: make(map[string]memItem), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(it.expires) {
		delete(c.items, key)
		return nil, false
	}
	ans := it.ans
	return &ans, true
}

func (c *MemoryCache) Set(_ context.Context, key string, ans *Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.items) >= c.maxEntries {
		for k, it := range c.items {
			if now.After(it.expires) {
				delete(c.items, k)
			}
		}
		// Still full: drop the entry closest to expiry.
		if len(c.items) >= c.maxEntries {
			var oldest string
			var at time.Time
			for k, it := range c.items {
				if oldest == "" || it.expires.Before(at) {
					oldest, at = k, it.expires
				}
			}
			delete(c.items, oldest)
		}
	}
	c.items[key] = memItem{ans: *ans, expires: now.Add(c.ttl)}
}

// Len returns the number of cached answers, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RedisCache shares answers between instances through Redis.
type RedisCache struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps client. Keys are stored under prefix.
func NewRedisCache(client *goredis.Client, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if prefix == "" {
		prefix = "chaxai:answer:"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Answer, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logging.L().Warnw("answer cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var ans Answer
	if err := json.Unmarshal(data, &ans); err != nil {
		logging.L().Warnw("dropping corrupt cached answer", "key", key, "error", err)
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return nil, false
	}
	return &ans, true
}

func (c *RedisCache) Set(ctx context.Context, key string, ans *Answer) {
	data, err := json.Marshal(ans)
	if err != nil {
		logging.L().Warnw("answer cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		logging.L().Warnw("answer cache write failed", "key", key, "error", err)
	}
}
