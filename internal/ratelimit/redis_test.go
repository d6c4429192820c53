package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6380"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisWindowStore(t *testing.T) {
	client := newRedisClient(t)
	s := NewRedisWindowStore(client)
	ctx := context.Background()
	key := fmt.Sprintf("test:ratelimit:%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(context.Background(), key) })

	used, err := s.Usage(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	ok, used, err := s.TryConsume(ctx, key, 70, 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(70), used)

	ok, used, err = s.TryConsume(ctx, key, 31, 100, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(70), used)

	ttl, err := client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
