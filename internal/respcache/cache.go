// Package respcache memoizes completions for equivalent chat requests within
// a TTL window, so at most one generation runs per equivalent request.
package respcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/infrawatch/ai-agent/internal/llm"
	"github.com/infrawatch/ai-agent/internal/metrics"
)

// Cache stores completions keyed by request fingerprint
type Cache interface {
	Get(ctx context.Context, fingerprint string) (llm.Completion, bool)
	Put(ctx context.Context, fingerprint string, completion llm.Completion)
}

const shardCount = 16

// MemoryCache is a sharded in-process TTL cache. Expired entries are treated
// as misses and lazily evicted on lookup; there is no background sweep.
type MemoryCache struct {
	shards [shardCount]*cacheShard
	ttl    time.Duration
	now    func() time.Time
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	completion llm.Completion
	expires    time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &MemoryCache{ttl: ttl, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	return c
}

func (c *MemoryCache) shard(fingerprint string) *cacheShard {
	// fingerprints are hex; the first byte spreads uniformly
	return c.shards[fingerprint[0]%shardCount]
}

func (c *MemoryCache) Get(_ context.Context, fingerprint string) (llm.Completion, bool) {
	if fingerprint == "" {
		return llm.Completion{}, false
	}
	s := c.shard(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fingerprint]
	if !ok {
		metrics.ResponseCacheMisses.Inc()
		return llm.Completion{}, false
	}
	if c.now().After(e.expires) {
		delete(s.entries, fingerprint)
		metrics.ResponseCacheMisses.Inc()
		return llm.Completion{}, false
	}
	metrics.ResponseCacheHits.Inc()
	return e.completion, true
}

func (c *MemoryCache) Put(_ context.Context, fingerprint string, completion llm.Completion) {
	if fingerprint == "" {
		return
	}
	s := c.shard(fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = cacheEntry{completion: completion, expires: c.now().Add(c.ttl)}
}

// RedisCache is the shared-store variant; TTL enforcement is Redis's.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (llm.Completion, bool) {
	data, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if err != nil {
		metrics.ResponseCacheMisses.Inc()
		return llm.Completion{}, false
	}
	var completion llm.Completion
	if err := json.Unmarshal(data, &completion); err != nil {
		metrics.ResponseCacheMisses.Inc()
		return llm.Completion{}, false
	}
	metrics.ResponseCacheHits.Inc()
	return completion, true
}

func (c *RedisCache) Put(ctx context.Context, fingerprint string, completion llm.Completion) {
	data, err := json.Marshal(completion)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(fingerprint), data, c.ttl).Err()
}

func (c *RedisCache) key(fingerprint string) string {
	return "respcache:" + fingerprint
}
