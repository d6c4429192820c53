// Package model 定义核心数据模型
//
// status.go 包含 Artifact 与 Job 共用的状态枚举：
//   - PENDING：已创建，等待处理
//   - PROCESSING：处理中
//   - DONE / ERROR：终态，一旦到达不再改变
package model

// ============================================================================
// Status - 状态枚举
// ============================================================================

// Status 表示 Artifact 或 Job 的处理状态
//
// 状态流转：PENDING → PROCESSING → {DONE | ERROR}
// 终态（DONE/ERROR）不可回退，存储层所有终态写入都是条件更新。
type Status string

const (
	// StatusPending 已创建，等待入队或等待 Worker 领取
	StatusPending Status = "PENDING"

	// StatusProcessing 处理中：Artifact 的 Job 已入队，或 Job 已被某个 Worker 领取
	StatusProcessing Status = "PROCESSING"

	// StatusDone 成功结束
	StatusDone Status = "DONE"

	// StatusError 失败结束（Artifact 只要有一个子 Job 失败即为 ERROR）
	StatusError Status = "ERROR"
)

// IsTerminal 是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid 是否为合法状态值
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

// TerminalStatuses 终态列表（用于 SQL IN 子句）
func TerminalStatuses() []Status {
	return []Status{StatusDone, StatusError}
}
