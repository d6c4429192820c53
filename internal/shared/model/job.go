package model

import "time"

// ============================================================================
// Job - 单个分片的工作单元
// ============================================================================

// Job 表示一个 Bucket 的生成工作
//
// 生命周期：
//   - JobDispatcher 按 Index 顺序批量创建（PENDING）
//   - 恰好一个 Worker 调用将其领取为 PROCESSING
//   - 同一调用写入终态（DONE/ERROR），终态不可变
//
// Index 在同一 Artifact 内是从 0 开始的连续序列，重组时按 Index 排序。
type Job struct {
	ID              string     `json:"id" db:"id"`
	ArtifactID      string     `json:"artifact_id" db:"artifact_id"`
	Index           int        `json:"index" db:"idx"`
	Status          Status     `json:"status" db:"status"`
	Text            string     `json:"-" db:"bucket_text"` // 分片原文（消息丢失时用于重新入队）
	Result          string     `json:"result,omitempty" db:"result"`
	TokensUsed      int64      `json:"tokens_used" db:"tokens_used"`
	Cost            float64    `json:"cost" db:"cost"`
	EstimatedTokens int64      `json:"estimated_tokens" db:"estimated_tokens"`
	EnqueuedAt      *time.Time `json:"enqueued_at,omitempty" db:"enqueued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal 是否已到达终态
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// JobOutcome Worker 写入的终态结果
type JobOutcome struct {
	Status     Status
	Result     string
	TokensUsed int64
	Cost       float64
}

// JobFilter 列表查询条件
type JobFilter struct {
	ArtifactID string
	Status     Status
	Limit      int
}

// ============================================================================
// Bucket - 分片（不持久化）
// ============================================================================

// Bucket 是原文中连续句子组成的最大片段，其 token 数不超过模型可用预算。
// 每个 Bucket 一对一转换为 Job。
type Bucket struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Tokens    int    `json:"tokens"`
	Sentences int    `json:"sentences"`
}
