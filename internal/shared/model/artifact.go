// Package model 定义核心数据模型
//
// artifact.go 包含生成产物（业务上称为 Summary）的数据模型定义：
//   - Artifact：一次生成请求的父记录
//   - ArtifactTotals：聚合统计
package model

import "time"

// ============================================================================
// Artifact - 生成产物（父单元）
// ============================================================================

// Artifact 表示用户请求的一次生成任务
//
// 生命周期：
//   - JobDispatcher 接受请求时创建（PENDING）
//   - 所有 Job 入队后转为 PROCESSING
//   - 所有子 Job 到达终态后由 ResultAggregator 写入终态，且只写一次
//
// 不变量：终态为 ERROR 当且仅当至少一个子 Job 为 ERROR。
type Artifact struct {
	ID             string `json:"id" db:"id"`
	DocumentKey    string `json:"document_key" db:"document_key"`
	DocumentName   string `json:"document_name,omitempty" db:"document_name"`
	OwnerID        string `json:"owner_id" db:"owner_id"`
	Kind           Kind   `json:"kind" db:"kind"`
	Language       string `json:"language" db:"language"`               // 目标语言代码
	SourceLanguage string `json:"source_language,omitempty" db:"source_language"` // 检测到的原文语言

	// 可选页码范围（1 起始，闭区间）
	PageStart *int `json:"page_start,omitempty" db:"page_start"`
	PageEnd   *int `json:"page_end,omitempty" db:"page_end"`

	Status      Status  `json:"status" db:"status"`
	TotalTokens int64   `json:"total_tokens" db:"total_tokens"`
	TotalCost   float64 `json:"total_cost" db:"total_cost"` // 预估费用（USD），由子 Job 汇总

	// ReservedCredits 派发时预扣的额度，终结时转为实际扣费
	ReservedCredits int64 `json:"reserved_credits" db:"reserved_credits"`

	// Rating 用户评分（1-5），仅终态可评
	Rating *int `json:"rating,omitempty" db:"rating"`

	JobCount   int        `json:"job_count" db:"job_count"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// IsTerminal 是否已到达终态
func (a *Artifact) IsTerminal() bool {
	return a.Status.IsTerminal()
}

// HasPageRange 是否指定了页码范围
func (a *Artifact) HasPageRange() bool {
	return a.PageStart != nil && a.PageEnd != nil
}

// ArtifactTotals 聚合计算结果
type ArtifactTotals struct {
	Status      Status
	TotalTokens int64
	TotalCost   float64
	Done        int
	Failed      int
}

// ArtifactFilter 列表查询条件
type ArtifactFilter struct {
	OwnerID string
	Status  Status
	Kind    Kind
	Limit   int
	Offset  int
}
