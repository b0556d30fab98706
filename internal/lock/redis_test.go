package lock

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when MILKBILL_TEST_REDIS_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("MILKBILL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MILKBILL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "milkbill:test:" + time.Now().Format("150405.000000")
	l := NewRedisLocker(client)

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Extend(ctx, key, token, time.Hour))
	ttl, err := client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Minute)

	require.NoError(t, l.Release(ctx, key, "stale"))
	assert.Equal(t, int64(1), client.Exists(ctx, key).Val())

	require.NoError(t, l.Release(ctx, key, token))
	assert.Equal(t, int64(0), client.Exists(ctx, key).Val())
}
