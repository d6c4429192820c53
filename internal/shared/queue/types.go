// Package queue 消息队列类型定义
package queue

import (
	"time"

	"summary-engine/internal/shared/model"
)

// ============================================================================
// 消息类型
// ============================================================================

// JobMessage 一个 Job 对应一条队列消息
//
// 消息携带 Worker 处理所需的全部上下文，Worker 只需按 JobID 读取状态即可，
// 不必再回查 Artifact。DocumentName 仅用于日志与诊断。
type JobMessage struct {
	ID              string // 队列消息 ID（由队列分配，入队时为空）
	JobID           string
	ArtifactID      string
	Index           int
	Text            string
	Language        string
	SourceLanguage  string // 检测到的原文语言，可为空
	Kind            model.Kind
	DocumentName    string
	EstimatedTokens int64
	EnqueuedAt      time.Time
}

// NewJobMessage 根据 Job 与 Artifact 构造消息
func NewJobMessage(a *model.Artifact, j *model.Job) *JobMessage {
	return &JobMessage{
		JobID:           j.ID,
		ArtifactID:      a.ID,
		Index:           j.Index,
		Text:            j.Text,
		Language:        a.Language,
		SourceLanguage:  a.SourceLanguage,
		Kind:            a.Kind,
		DocumentName:    a.DocumentName,
		EstimatedTokens: j.EstimatedTokens,
	}
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyJobStream Job 队列（Redis Stream）
	KeyJobStream = "summary:jobs"

	// JobConsumerGroup Worker 消费者组
	JobConsumerGroup = "summary_workers"
)
