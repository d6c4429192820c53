// Package queue 进程内队列实现
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("queue closed")

// ============================================================================
// MemoryQueue - 进程内 JobQueue 实现（测试与单机开发）
// ============================================================================

type memoryEntry struct {
	msg         JobMessage
	delivered   bool
	acked       bool
	consumer    string
	deliveredAt time.Time
}

// MemoryQueue 与 Redis Streams 消费者组语义一致的内存队列：
// 未 Ack 的消息保留在 pending 中，可被 ReclaimJobs 重新认领。
type MemoryQueue struct {
	mu      sync.Mutex
	entries []*memoryEntry
	seq     int64
	notify  chan struct{}
	closed  bool
	now     func() time.Time

	// FailEnqueueAfter 大于 0 时，第 N 次之后的入队全部失败（模拟派发中途故障）
	FailEnqueueAfter int
	enqueued         int
}

var _ JobQueue = (*MemoryQueue)(nil)

// NewMemoryQueue 创建内存队列
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1), now: time.Now}
}

// EnqueueJob 入队
func (q *MemoryQueue) EnqueueJob(ctx context.Context, msg *JobMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	if q.FailEnqueueAfter > 0 && q.enqueued >= q.FailEnqueueAfter {
		return "", fmt.Errorf("enqueue job %s: simulated broker failure", msg.JobID)
	}
	q.enqueued++
	q.seq++
	m := *msg
	m.ID = fmt.Sprintf("%d-0", q.seq)
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = q.now()
	}
	q.entries = append(q.entries, &memoryEntry{msg: m})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return m.ID, nil
}

// EnsureGroup 内存队列只有一个隐式消费者组
func (q *MemoryQueue) EnsureGroup(ctx context.Context) error {
	return nil
}

// ConsumeJobs 读取未投递的消息
func (q *MemoryQueue) ConsumeJobs(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*JobMessage, error) {
	if count <= 0 {
		count = 1
	}
	var timer <-chan time.Time
	if blockTimeout > 0 {
		t := time.NewTimer(blockTimeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		var out []*JobMessage
		for _, e := range q.entries {
			if int64(len(out)) >= count {
				break
			}
			if e.delivered {
				continue
			}
			e.delivered = true
			e.consumer = consumerID
			e.deliveredAt = q.now()
			m := e.msg
			out = append(out, &m)
		}
		q.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}
		if timer == nil {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		case <-q.notify:
		}
	}
}

// AckJob 确认消息
func (q *MemoryQueue) AckJob(ctx context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.msg.ID == messageID {
			e.acked = true
			return nil
		}
	}
	return nil
}

// ReclaimJobs 认领空闲超时的未确认消息
func (q *MemoryQueue) ReclaimJobs(ctx context.Context, consumerID string, minIdle time.Duration, count int64) ([]*JobMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var out []*JobMessage
	for _, e := range q.entries {
		if count > 0 && int64(len(out)) >= count {
			break
		}
		if !e.delivered || e.acked || now.Sub(e.deliveredAt) < minIdle {
			continue
		}
		e.consumer = consumerID
		e.deliveredAt = now
		m := e.msg
		out = append(out, &m)
	}
	return out, nil
}

// TrimAcked 删除队首连续的已确认消息
func (q *MemoryQueue) TrimAcked(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.entries) && q.entries[n].acked {
		n++
	}
	q.entries = append(q.entries[:0:0], q.entries[n:]...)
	return int64(n), nil
}

// QueueLength 队列中的消息总数（含已确认，与 XLEN 一致）
func (q *MemoryQueue) QueueLength(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}

// PendingCount 已投递未确认的消息数
func (q *MemoryQueue) PendingCount(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, e := range q.entries {
		if e.delivered && !e.acked {
			n++
		}
	}
	return n, nil
}

// Messages 返回全部已入队消息的快照（测试断言用）
func (q *MemoryQueue) Messages() []JobMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]JobMessage, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.msg
	}
	return out
}

// Close 关闭队列
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
