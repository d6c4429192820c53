// Package queue 消息队列抽象接口
//
// 提供 Job 分发和消费的队列能力，当前由 Redis Streams 实现。
// 投递语义为至少一次：消息在 Ack 之前可能被重复投递，消费方必须幂等。
package queue

import (
	"context"
	"time"
)

// ============================================================================
// 队列接口定义
// ============================================================================

// JobPublisher 入队端（JobDispatcher / Reconciler 使用）
type JobPublisher interface {
	// EnqueueJob 入队，返回消息 ID
	EnqueueJob(ctx context.Context, msg *JobMessage) (string, error)
}

// JobConsumer 消费端（Worker 使用）
type JobConsumer interface {
	// EnsureGroup 创建消费者组（已存在时忽略）
	EnsureGroup(ctx context.Context) error
	// ConsumeJobs 读取新消息，blockTimeout 内无消息时返回空
	ConsumeJobs(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*JobMessage, error)
	// AckJob 确认消息已处理
	AckJob(ctx context.Context, messageID string) error
	// ReclaimJobs 认领空闲超过 minIdle 的未确认消息（原消费者崩溃时）
	ReclaimJobs(ctx context.Context, consumerID string, minIdle time.Duration, count int64) ([]*JobMessage, error)
}

// JobTrimmer 回收已确认的消息
type JobTrimmer interface {
	// TrimAcked 删除早于最早未确认消息的条目，返回删除条数；未投递的消息不受影响
	TrimAcked(ctx context.Context) (int64, error)
}

// JobQueueStats 队列统计
type JobQueueStats interface {
	QueueLength(ctx context.Context) (int64, error)
	PendingCount(ctx context.Context) (int64, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// JobQueue 消息队列组合接口
type JobQueue interface {
	JobPublisher
	JobConsumer
	JobQueueStats
	JobTrimmer
	Close() error
}
