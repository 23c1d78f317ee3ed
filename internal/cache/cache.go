// Package cache is a small read-through cache for the kiosk's hot reads,
// the supply catalog and the popular-items board. Redis is the shared tier;
// when it is absent or down, a per-process memory tier keeps the kiosks
// responsive.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb *redis.Client // nil means memory only
	ttl time.Duration

	mu sync.RWMutex
	m  map[string]entry
}

type entry struct {
	val []byte
	exp time.Time
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		rdb: rdb,
		ttl: ttl,
		m:   make(map[string]entry),
	}
}

// GetJSON loads key into dst, trying Redis first and the memory tier on a
// miss or a Redis error.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(raw, dst) == nil
		}
		if !errors.Is(err, redis.Nil) {
			// Redis down, fall through to memory
			return c.getLocal(key, dst)
		}
		return false
	}
	return c.getLocal(key, dst)
}

func (c *Cache) SetJSON(ctx context.Context, key string, val any) {
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err == nil {
			return
		}
	}

	c.mu.Lock()
	c.m[key] = entry{val: raw, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c.rdb != nil {
		_ = c.rdb.Del(ctx, keys...).Err()
	}

	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
}

func (c *Cache) getLocal(key string, dst any) bool {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return false
	}

	return json.Unmarshal(e.val, dst) == nil
}
