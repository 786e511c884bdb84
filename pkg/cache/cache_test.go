package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client)
}

func implementations(t *testing.T) map[string]Cache {
	return map[string]Cache{
		"memory": NewMemoryCache(),
		"redis":  newRedisTestCache(t),
	}
}

func TestIncrWindow(t *testing.T) {
	ctx := context.Background()
	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			for i := int64(1); i <= 5; i++ {
				n, err := c.IncrWindow(ctx, "rl:ip:1.2.3.4", time.Minute)
				require.NoError(t, err)
				assert.Equal(t, i, n)
			}

			// Separate keys count independently.
			n, err := c.IncrWindow(ctx, "rl:ip:5.6.7.8", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func TestMemoGetSet(t *testing.T) {
	ctx := context.Background()
	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, "memo:missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "memo:k", []byte("value"), time.Hour))
			got, ok, err := c.Get(ctx, "memo:k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("value"), got)
		})
	}
}

func TestMemoryMemoExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	require.NoError(t, c.Set(ctx, "memo:k", []byte("v"), time.Minute))

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok, err := c.Get(ctx, "memo:k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoKey(t *testing.T) {
	a := MemoKey("problem", "saas", "standard", "org-1")
	b := MemoKey("problem", "saas", "standard", "org-2")
	assert.NotEqual(t, a, b, "same inputs for different orgs must not collide")
	assert.Equal(t, a, MemoKey("problem", "saas", "standard", "org-1"))
}
