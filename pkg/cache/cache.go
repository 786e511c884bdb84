// Package cache is the shared counter and memoization tier. It backs the
// fixed-window rate limits and the per-org analysis-output memo cache, with a
// Redis implementation for multi-node deployments and an in-memory fallback
// when CACHE_URL is unset. Unavailability of the tier fails open: callers
// log and continue rather than refusing requests.
package cache

import (
	"context"
	"time"
)

// Counters provides fixed-window counting, used for rate limiting.
type Counters interface {
	// IncrWindow increments the counter of the fixed window containing now
	// for key and returns the post-increment value. The window resets every
	// window duration.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Memo is a TTL'd byte cache, used for analysis-output memoization. Keys are
// constructed per org so entries never cross tenants.
type Memo interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache bundles both concerns of one backend.
type Cache interface {
	Counters
	Memo

	// Ping reports backend reachability for readiness checks.
	Ping(ctx context.Context) error

	Close() error
}
