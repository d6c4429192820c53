package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"summary-engine/internal/config"
)

func newTestLimiter(ceiling int64) (*Limiter, *MemoryWindowStore) {
	store := NewMemoryWindowStore()
	l := New(store, "gpt-4o-mini", config.RateLimitConfig{
		TokensPerWindow: ceiling,
		KeyPrefix:       "test",
		RetryInterval:   time.Minute,
		StoreRetry:      time.Second,
	}, nil)
	return l, store
}

func TestWindowKey(t *testing.T) {
	l, _ := newTestLimiter(100)
	at := time.Date(2026, 3, 7, 9, 5, 59, 0, time.UTC)
	assert.Equal(t, "test:gpt-4o-mini-2026-3-7-9-5", l.WindowKey(at))
	assert.NotEqual(t, l.WindowKey(at), l.WindowKey(at.Add(time.Second)))
}

func TestTryAcquireNeverExceedsCeiling(t *testing.T) {
	l, store := newTestLimiter(1000)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, err := l.TryAcquire(ctx, 600)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryAcquire(ctx, 401)
	require.NoError(t, err)
	assert.False(t, ok, "600+401 would exceed 1000")

	ok, err = l.TryAcquire(ctx, 400)
	require.NoError(t, err)
	assert.True(t, ok, "exactly at the ceiling is allowed")

	used, _ := store.Usage(ctx, l.WindowKey(now))
	assert.Equal(t, int64(1000), used)

	// 新窗口重新计数
	now = now.Add(time.Minute)
	ok, err = l.TryAcquire(ctx, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryAcquireClampsOversizedRequest(t *testing.T) {
	l, _ := newTestLimiter(100)
	ok, err := l.TryAcquire(context.Background(), 5000)
	require.NoError(t, err)
	assert.True(t, ok)

	_, used, err := l.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), used)
}

func TestTryAcquireUnlimited(t *testing.T) {
	l, _ := newTestLimiter(0)
	ok, err := l.TryAcquire(context.Background(), 1<<40)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireWaitsForNextWindow(t *testing.T) {
	l, _ := newTestLimiter(100)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return now }

	var sleeps []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		return nil
	}

	_, err := l.Acquire(ctx, 80)
	require.NoError(t, err)

	waited, err := l.Acquire(ctx, 80)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, sleeps)
	assert.Equal(t, time.Minute, waited)
}

type flakyStore struct {
	WindowStore
	failures int
}

func (f *flakyStore) TryConsume(ctx context.Context, key string, tokens, ceiling int64, ttl time.Duration) (bool, int64, error) {
	if f.failures > 0 {
		f.failures--
		return false, 0, assert.AnError
	}
	return f.WindowStore.TryConsume(ctx, key, tokens, ceiling, ttl)
}

func TestAcquireRetriesStoreErrors(t *testing.T) {
	store := &flakyStore{WindowStore: NewMemoryWindowStore(), failures: 2}
	l := New(store, "m", config.RateLimitConfig{TokensPerWindow: 10, StoreRetry: 3 * time.Second}, nil)

	var sleeps []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err := l.Acquire(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeps)
}

func TestAcquireHonoursCancellation(t *testing.T) {
	l, _ := newTestLimiter(10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx, cancel := context.WithCancel(context.Background())

	_, err := l.Acquire(ctx, 10)
	require.NoError(t, err)

	l.retryInterval = 10 * time.Millisecond
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = l.Acquire(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAcquireRespectsCeiling(t *testing.T) {
	l, store := newTestLimiter(1000)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := l.TryAcquire(ctx, 70); err == nil && ok {
				granted.Add(70)
			}
		}()
	}
	wg.Wait()

	used, _ := store.Usage(ctx, l.WindowKey(now))
	assert.Equal(t, granted.Load(), used)
	assert.LessOrEqual(t, used, int64(1000))
	assert.Equal(t, int64(980), used)
}

func TestMemoryWindowExpires(t *testing.T) {
	s := NewMemoryWindowStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, err := s.TryConsume(ctx, "k", 5, 10, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	used, err := s.Usage(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)
}

func TestMemoryWindowEvictsExpiredKeys(t *testing.T) {
	s := NewMemoryWindowStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		key := fmt.Sprintf("ratelimit:m:%d", i)
		ok, _, err := s.TryConsume(ctx, key, 1, 10, 2*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		now = now.Add(time.Minute)
	}
	// 仅剩 TTL 内的窗口
	assert.LessOrEqual(t, s.Len(), 3)

	_, err := s.Usage(ctx, "never-used")
	require.NoError(t, err)
	assert.LessOrEqual(t, s.Len(), 3)
}
