// Package ratelimit 跨 Worker 的全局 token 限流
//
// 每个时间窗口（自然分钟）对应共享存储中的一个计数器，键由模型名与窗口时间派生，
// 窗口滚动即隐式重置。检查与累加在存储侧原子完成，不存在先读后写的竞态。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowStore 共享窗口计数器
type WindowStore interface {
	// TryConsume 若 usage+tokens <= ceiling 则原子累加并返回 (true, 新用量)，
	// 否则不修改并返回 (false, 当前用量)
	TryConsume(ctx context.Context, key string, tokens, ceiling int64, ttl time.Duration) (bool, int64, error)
	// Usage 返回窗口当前用量，不存在时为 0
	Usage(ctx context.Context, key string) (int64, error)
}

// ============================================================================
// MemoryWindowStore - 单进程实现（测试与单机开发）
// ============================================================================

type memoryWindow struct {
	used      int64
	expiresAt time.Time
}

// MemoryWindowStore 互斥锁保护的内存窗口
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

// NewMemoryWindowStore 创建内存窗口存储
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*memoryWindow), now: time.Now}
}

// TryConsume 原子检查并累加
func (s *MemoryWindowStore) TryConsume(ctx context.Context, key string, tokens, ceiling int64, ttl time.Duration) (bool, int64, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.window(key)
	if w.used+tokens > ceiling {
		return false, w.used, nil
	}
	w.used += tokens
	if ttl > 0 {
		w.expiresAt = s.now().Add(ttl)
	}
	return true, w.used, nil
}

// Usage 当前用量
func (s *MemoryWindowStore) Usage(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict()
	if w, ok := s.windows[key]; ok {
		return w.used, nil
	}
	return 0, nil
}

// Len 未过期的窗口数
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict()
	return len(s.windows)
}

// window 调用方持有锁
func (s *MemoryWindowStore) window(key string) *memoryWindow {
	s.evict()
	w, ok := s.windows[key]
	if !ok {
		w = &memoryWindow{}
		s.windows[key] = w
	}
	return w
}

// evict 删除已过期的窗口；窗口按分钟滚动，存活的只有最近几个
func (s *MemoryWindowStore) evict() {
	now := s.now()
	for k, w := range s.windows {
		if !w.expiresAt.IsZero() && now.After(w.expiresAt) {
			delete(s.windows, k)
		}
	}
}
