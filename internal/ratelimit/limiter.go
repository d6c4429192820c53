package ratelimit

import (
	"context"
	"fmt"
	"time"

	"summary-engine/internal/config"
	"summary-engine/pkg/logging"
)

// Limiter 阻塞式 token 闸门
//
// Acquire 只在本次请求不会把窗口用量推过上限时返回；
// 否则睡眠 RetryInterval 后重试。没有等待上限，只有 ctx 能中止。
type Limiter struct {
	store         WindowStore
	model         string
	prefix        string
	ceiling       int64
	retryInterval time.Duration
	storeRetry    time.Duration
	ttl           time.Duration
	log           *logging.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建限流器
func New(store WindowStore, model string, cfg config.RateLimitConfig, log *logging.Logger) *Limiter {
	if log == nil {
		log = logging.Discard()
	}
	l := &Limiter{
		store:         store,
		model:         model,
		prefix:        cfg.KeyPrefix,
		ceiling:       cfg.TokensPerWindow,
		retryInterval: cfg.RetryInterval,
		storeRetry:    cfg.StoreRetry,
		ttl:           cfg.WindowTTL,
		log:           log.Named("ratelimit"),
		now:           time.Now,
		sleep:         sleepContext,
	}
	if l.prefix == "" {
		l.prefix = "summary:ratelimit"
	}
	if l.retryInterval <= 0 {
		l.retryInterval = 60 * time.Second
	}
	if l.storeRetry <= 0 {
		l.storeRetry = 3 * time.Second
	}
	if l.ttl <= 0 {
		l.ttl = 2 * time.Minute
	}
	return l
}

// Ceiling 每窗口上限
func (l *Limiter) Ceiling() int64 {
	return l.ceiling
}

// WindowKey 返回 t 所在窗口的键：{prefix}:{model}-{Y}-{M}-{D}-{h}-{m}
func (l *Limiter) WindowKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s:%s-%d-%d-%d-%d-%d",
		l.prefix, l.model, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

// TryAcquire 单次尝试，不等待
//
// 超过上限的单个请求按上限计，保证它在空窗口中最终能通过。上限 <= 0 表示不限流。
func (l *Limiter) TryAcquire(ctx context.Context, tokens int64) (bool, error) {
	if l.ceiling <= 0 {
		return true, nil
	}
	if tokens < 0 {
		tokens = 0
	}
	if tokens > l.ceiling {
		tokens = l.ceiling
	}
	ok, _, err := l.store.TryConsume(ctx, l.WindowKey(l.now()), tokens, l.ceiling, l.ttl)
	return ok, err
}

// Acquire 阻塞直到获准，返回累计等待时长
func (l *Limiter) Acquire(ctx context.Context, tokens int64) (time.Duration, error) {
	start := l.now()
	for attempt := 1; ; attempt++ {
		ok, err := l.TryAcquire(ctx, tokens)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return l.now().Sub(start), ctx.Err()
			}
			l.log.Warn("ratelimit.store.failed", "error", err, "attempt", attempt, "retry_in", l.storeRetry)
			if err := l.sleep(ctx, l.storeRetry); err != nil {
				return l.now().Sub(start), err
			}
		case ok:
			return l.now().Sub(start), nil
		default:
			l.log.Debug("ratelimit.wait", "tokens", tokens, "ceiling", l.ceiling, "attempt", attempt, "retry_in", l.retryInterval)
			if err := l.sleep(ctx, l.retryInterval); err != nil {
				return l.now().Sub(start), err
			}
		}
	}
}

// Usage 当前窗口用量
func (l *Limiter) Usage(ctx context.Context) (string, int64, error) {
	key := l.WindowKey(l.now())
	n, err := l.store.Usage(ctx, key)
	return key, n, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
