// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（database/sql）、objstore/（MinIO）
//   - 初始化时通过依赖注入传入实现
//
// 所有终态写入都是条件更新，返回值 bool 表示本次调用是否真正生效，
// 调用方据此判断自己是否是“赢家”（领取 Job、终结 Artifact）。
package storage

import (
	"context"
	"time"

	"summary-engine/internal/shared/model"
)

// ============================================================================
// 记录存储接口（由 repository.Store 实现）
// ============================================================================

// ArtifactStore 产物存储接口
type ArtifactStore interface {
	// CreateArtifactWithJobs 在同一事务中写入 Artifact 与全部 Job（ID 重复时返回 ErrDuplicate）
	CreateArtifactWithJobs(ctx context.Context, artifact *model.Artifact, jobs []*model.Job) error
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
	ListArtifacts(ctx context.Context, filter model.ArtifactFilter) ([]*model.Artifact, error)
	// MarkArtifactProcessing PENDING → PROCESSING（已是其它状态时不做任何事）
	MarkArtifactProcessing(ctx context.Context, id string) error
	// FinalizeArtifact 仅当 Artifact 处于非终态时写入终态与汇总值
	FinalizeArtifact(ctx context.Context, id string, totals model.ArtifactTotals) (bool, error)
	// SetArtifactRating 写入评分，Artifact 非终态时返回 ErrConflict
	SetArtifactRating(ctx context.Context, id string, rating int) error
}

// JobStore Job 存储接口
type JobStore interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobsByArtifact(ctx context.Context, artifactID string) ([]*model.Job, error)
	ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, error)
	// ClaimJob PENDING → PROCESSING，返回是否领取成功
	ClaimJob(ctx context.Context, id string) (bool, error)
	// ReleaseJob PROCESSING → PENDING，领取后未开始调用模型时归还
	ReleaseJob(ctx context.Context, id string) (bool, error)
	// CompleteJob PROCESSING → DONE/ERROR，返回是否写入成功
	CompleteJob(ctx context.Context, id string, outcome model.JobOutcome) (bool, error)
	// MarkJobEnqueued 记录消息已入队的时间
	MarkJobEnqueued(ctx context.Context, id string, at time.Time) error
	// ListOrphanedJobs 列出仍为 PENDING 且从未入队、或入队早于 olderThan 的 Job
	ListOrphanedJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Job, error)
}

// ============================================================================
// 外部协作方接口
// ============================================================================

// DocumentStore 文档存储接口（文本提取结果的只读视图）
type DocumentStore interface {
	GetDocument(ctx context.Context, key string) (*model.Document, error)
}

// DocumentWriter 文档写入接口（运维导入与测试使用）
type DocumentWriter interface {
	PutDocument(ctx context.Context, doc *model.Document) error
}

// BalanceStore 额度存储接口
type BalanceStore interface {
	// Reserve 预扣额度，可用额度不足时返回 ErrInsufficientBalance
	Reserve(ctx context.Context, ownerID string, amount int64) error
	// Release 退回预扣额度
	Release(ctx context.Context, ownerID string, amount int64) error
	// Debit 将预扣额度转为实际消费
	Debit(ctx context.Context, ownerID string, amount int64) error
	// Credit 增加可用额度（账户不存在时创建）
	Credit(ctx context.Context, ownerID string, amount int64) error
	GetBalance(ctx context.Context, ownerID string) (*model.Balance, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	ArtifactStore
	JobStore
	DocumentStore
	DocumentWriter
	BalanceStore
	Close() error
}
