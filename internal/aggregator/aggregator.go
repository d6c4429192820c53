// Package aggregator 在子 Job 全部到达终态后终结 Artifact，并按 Index 重组结果
//
// 每个完成 Job 的 Worker 都会调用 TryFinalize；多个 Worker 可能同时观察到
// “全部终态”，终态写入是条件更新，只有一个调用胜出，扣费只由胜出者执行。
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"summary-engine/internal/prompt"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/storage"
	"summary-engine/pkg/logging"
)

// Aggregator 结果汇总器
type Aggregator struct {
	artifacts storage.ArtifactStore
	jobs      storage.JobStore
	balances  storage.BalanceStore
	log       *logging.Logger
}

// New 创建汇总器，balances 为空时终结不扣费
func New(artifacts storage.ArtifactStore, jobs storage.JobStore, balances storage.BalanceStore, log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.Discard()
	}
	return &Aggregator{
		artifacts: artifacts,
		jobs:      jobs,
		balances:  balances,
		log:       log.Named("aggregator"),
	}
}

// Totals 计算汇总值；还有未终态的 Job 时 ok 为 false
func Totals(jobs []*model.Job) (totals model.ArtifactTotals, ok bool) {
	if len(jobs) == 0 {
		return totals, false
	}
	for _, j := range jobs {
		if !j.IsTerminal() {
			return model.ArtifactTotals{}, false
		}
		totals.TotalTokens += j.TokensUsed
		totals.TotalCost += j.Cost
		if j.Status == model.StatusError {
			totals.Failed++
		} else {
			totals.Done++
		}
	}
	totals.Status = model.StatusDone
	if totals.Failed > 0 {
		totals.Status = model.StatusError
	}
	return totals, true
}

// TryFinalize 检查兄弟 Job，全部终态时写入 Artifact 终态
//
// 返回 true 表示本次调用完成了终结写入。
func (a *Aggregator) TryFinalize(ctx context.Context, artifactID string) (bool, error) {
	jobs, err := a.jobs.ListJobsByArtifact(ctx, artifactID)
	if err != nil {
		return false, fmt.Errorf("list jobs of %s: %w", artifactID, err)
	}
	totals, ok := Totals(jobs)
	if !ok {
		return false, nil
	}

	won, err := a.artifacts.FinalizeArtifact(ctx, artifactID, totals)
	if err != nil {
		return false, fmt.Errorf("finalize artifact %s: %w", artifactID, err)
	}
	if !won {
		return false, nil
	}

	a.log.Info("aggregate.finalized",
		"artifact_id", artifactID,
		"status", totals.Status,
		"jobs", len(jobs),
		"failed", totals.Failed,
		"total_tokens", totals.TotalTokens,
		"total_cost", totals.TotalCost,
	)
	a.debit(ctx, artifactID)
	return true, nil
}

// debit 终结胜出者把预扣额度转为消费；失败只记录日志，终态已写入不回滚
func (a *Aggregator) debit(ctx context.Context, artifactID string) {
	if a.balances == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	artifact, err := a.artifacts.GetArtifact(ctx, artifactID)
	if err != nil {
		a.log.Error("aggregate.debit.failed", "artifact_id", artifactID, "error", err)
		return
	}
	if artifact.ReservedCredits <= 0 {
		return
	}
	if err := a.balances.Debit(ctx, artifact.OwnerID, artifact.ReservedCredits); err != nil {
		a.log.Error("aggregate.debit.failed",
			"artifact_id", artifactID,
			"owner_id", artifact.OwnerID,
			"credits", artifact.ReservedCredits,
			"error", err,
		)
	}
}

// ============================================================================
// 结果重组
// ============================================================================

// Part 单个 Job 的结果片段
type Part struct {
	Index   int           `json:"index"`
	JobID   string        `json:"job_id"`
	Status  model.Status  `json:"status"`
	Content string        `json:"content,omitempty"`
	Error   string        `json:"error,omitempty"`
	Result  prompt.Result `json:"result,omitempty"`
}

// Assembled 重组后的 Artifact 结果
//
// ERROR 的 Artifact 仍然携带已成功的片段，失败片段以 Error 标出。
type Assembled struct {
	ArtifactID string       `json:"artifact_id"`
	Kind       model.Kind   `json:"kind"`
	Status     model.Status `json:"status"`
	Complete   bool         `json:"complete"`
	Failed     int          `json:"failed"`
	Parts      []Part       `json:"parts"`
	Text       string       `json:"text"`
}

// Assemble 按 Index 排序并解码每个 DONE 片段
func Assemble(artifact *model.Artifact, jobs []*model.Job) *Assembled {
	sorted := make([]*model.Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].Index < sorted[k].Index })

	out := &Assembled{
		ArtifactID: artifact.ID,
		Kind:       artifact.Kind,
		Status:     artifact.Status,
		Complete:   artifact.IsTerminal(),
		Parts:      make([]Part, 0, len(sorted)),
	}
	var texts []string
	for _, j := range sorted {
		p := Part{Index: j.Index, JobID: j.ID, Status: j.Status}
		switch j.Status {
		case model.StatusDone:
			r, err := prompt.Decode(artifact.Kind, j.Result)
			if err != nil {
				// 写入时已校验过，这里只可能是历史数据
				p.Error = err.Error()
				out.Failed++
				break
			}
			p.Result = r
			p.Content = r.Markdown()
			texts = append(texts, p.Content)
		case model.StatusError:
			p.Error = FailureMessage(j.Result)
			out.Failed++
		}
		out.Parts = append(out.Parts, p)
	}
	out.Text = strings.Join(texts, "\n\n")
	return out
}

// Failure Job 失败时写入的结果载荷
type Failure struct {
	Error string `json:"error"`
	Raw   string `json:"raw,omitempty"`
}

// Encode 序列化为 Job.Result
func (f Failure) Encode() string {
	b, err := json.Marshal(f)
	if err != nil {
		return f.Error
	}
	return string(b)
}

// FailureMessage 从 ERROR Job 的结果中取出错误信息
func FailureMessage(result string) string {
	var f Failure
	if err := json.Unmarshal([]byte(result), &f); err == nil && f.Error != "" {
		return f.Error
	}
	return result
}
