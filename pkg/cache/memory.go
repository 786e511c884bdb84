package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryCache implements Cache with mutex-guarded maps. Single-node only;
// state does not survive a restart. Expired entries are dropped lazily on
// access and swept opportunistically on writes.
type MemoryCache struct {
	mu       sync.Mutex
	counters map[string]int64
	memo     map[string]memoEntry
	now      func() time.Time
}

type memoEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache builds an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		counters: make(map[string]int64),
		memo:     make(map[string]memoEntry),
		now:      time.Now,
	}
}

// IncrWindow implements Counters. Old windows for other indexes stay until
// the sweep below removes them; the per-window key keeps counting correct.
func (c *MemoryCache) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	idx := c.now().UnixNano() / int64(window)
	windowKey := key + ":" + strconv.FormatInt(idx, 10)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[windowKey]++
	n := c.counters[windowKey]
	// Drop a stale window's key; two live windows per key is the bound.
	delete(c.counters, key+":"+strconv.FormatInt(idx-2, 10))
	return n, nil
}

// Get implements Memo.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.memo[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.memo, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements Memo.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.memo[key] = memoEntry{value: stored, expiresAt: now.Add(ttl)}
	for k, e := range c.memo {
		if now.After(e.expiresAt) {
			delete(c.memo, k)
		}
	}
	return nil
}

// Ping implements Cache; the in-memory tier is always reachable.
func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

// Close implements Cache.
func (c *MemoryCache) Close() error { return nil }

// Compile-time interface check.
var _ Cache = (*MemoryCache)(nil)
