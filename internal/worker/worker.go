// Package worker 队列消费端：单个 Job 的处理、批量消费循环与孤儿巡检
//
// Process 的处理顺序：
//
//	读取 Job → 已终态或已被领取则跳过（重复投递） → 领取 PENDING→PROCESSING →
//	等待限流放行 → 构造提示词 → 调用模型 → 修复并解码输出 → 写入终态 → 尝试终结 Artifact
//
// 先领取再限流：重复投递的副本在领取处落败，不会消耗窗口预算。
// 限流等待被取消时把 Job 归还为 PENDING 且不 Ack，消息可被重新认领；
// 放行之后的步骤不再响应取消，由模型超时兜底。
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"summary-engine/internal/aggregator"
	"summary-engine/internal/generation"
	"summary-engine/internal/prompt"
	"summary-engine/internal/repair"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/queue"
	"summary-engine/internal/shared/storage"
	"summary-engine/pkg/logging"
)

// Limiter 全局 token 限流
type Limiter interface {
	Acquire(ctx context.Context, tokens int64) (time.Duration, error)
}

// Finalizer Artifact 终结
type Finalizer interface {
	TryFinalize(ctx context.Context, artifactID string) (bool, error)
}

// Options 模型调用参数
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Pricing     generation.Pricing
}

// Worker 单个 Job 处理器，可并发调用
type Worker struct {
	jobs      storage.JobStore
	limiter   Limiter
	provider  generation.Provider
	finalizer Finalizer
	opts      Options
	metrics   *Metrics
	log       *logging.Logger
}

// New 创建 Worker；metrics 可为空
func New(jobs storage.JobStore, limiter Limiter, provider generation.Provider, finalizer Finalizer, opts Options, metrics *Metrics, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.Discard()
	}
	return &Worker{
		jobs:      jobs,
		limiter:   limiter,
		provider:  provider,
		finalizer: finalizer,
		opts:      opts,
		metrics:   metrics,
		log:       log.Named("worker"),
	}
}

// Process 处理一条消息
//
// 返回非 nil 只代表基础设施故障，调用方不应 Ack；Job 级别的失败记录在 Job 上，返回 nil。
func (w *Worker) Process(ctx context.Context, msg *queue.JobMessage) error {
	ctx = logging.ContextWithJob(ctx, msg.ArtifactID, msg.JobID)
	ctx = logging.ContextWithMessage(ctx, msg.ID)
	log := w.log.WithContext(ctx)

	job, err := w.jobs.GetJob(ctx, msg.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("worker.job.missing")
		w.metrics.skipped("missing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}

	switch job.Status {
	case model.StatusDone, model.StatusError:
		// 重复投递：上次可能在终结前退出，补一次终结检查
		log.Info("worker.job.skip", "reason", "terminal", "status", job.Status)
		w.metrics.skipped("terminal")
		return w.finalize(context.WithoutCancel(ctx), job.ArtifactID)
	case model.StatusProcessing:
		log.Info("worker.job.skip", "reason", "claimed")
		w.metrics.skipped("claimed")
		return nil
	}

	claimed, err := w.jobs.ClaimJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if !claimed {
		log.Info("worker.job.skip", "reason", "claim_lost")
		w.metrics.skipped("claim_lost")
		return nil
	}

	tokens := msg.EstimatedTokens
	if tokens <= 0 {
		tokens = job.EstimatedTokens
	}
	waited, err := w.limiter.Acquire(ctx, tokens)
	if err != nil {
		if _, rerr := w.jobs.ReleaseJob(context.WithoutCancel(ctx), job.ID); rerr != nil {
			log.Error("worker.job.release.failed", "error", rerr)
		}
		return fmt.Errorf("acquire rate budget for job %s: %w", job.ID, err)
	}
	w.metrics.observeWait(waited)

	// 放行之后不再响应取消
	ctx = context.WithoutCancel(ctx)

	log.Info("worker.job.start", "index", msg.Index, "document", msg.DocumentName, "estimated_tokens", tokens, "waited_ms", waited.Milliseconds())
	text := msg.Text
	if text == "" {
		text = job.Text
	}
	outcome := w.run(ctx, log, msg, text)

	ok, err := w.jobs.CompleteJob(ctx, job.ID, outcome)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	if !ok {
		log.Warn("worker.job.complete.lost")
		return nil
	}
	w.metrics.observeJob(outcome)
	log.Info("worker.job.done", "status", outcome.Status, "tokens", outcome.TokensUsed, "cost", outcome.Cost)

	return w.finalize(ctx, job.ArtifactID)
}

// run 调用模型并把结果转换为终态
func (w *Worker) run(ctx context.Context, log *logging.Logger, msg *queue.JobMessage, text string) model.JobOutcome {
	req, err := prompt.Build(msg.Kind, msg.Language, msg.SourceLanguage, text, w.opts.MaxTokens)
	if err != nil {
		log.Error("worker.prompt.failed", "error", err)
		return model.JobOutcome{Status: model.StatusError, Result: err.Error()}
	}
	req.Model = w.opts.Model
	req.Temperature = w.opts.Temperature

	start := time.Now()
	resp, err := w.provider.Generate(ctx, req)
	w.metrics.observeGeneration(time.Since(start), err)
	if err != nil {
		log.Error("worker.generate.failed", "provider", w.provider.Name(), "error", err)
		return model.JobOutcome{Status: model.StatusError, Result: err.Error()}
	}

	tokens := int64(resp.TotalTokens())
	cost := w.opts.Pricing.Cost(resp.InputTokens, resp.OutputTokens)
	fail := func(err error, raw string) model.JobOutcome {
		log.Warn("worker.output.invalid", "error", err, "raw_bytes", len(raw))
		return model.JobOutcome{
			Status:     model.StatusError,
			Result:     aggregator.Failure{Error: err.Error(), Raw: raw}.Encode(),
			TokensUsed: tokens,
			Cost:       cost,
		}
	}

	repaired, err := repair.Repair(resp.Text)
	if err != nil {
		return fail(err, resp.Text)
	}
	if _, err := prompt.Decode(msg.Kind, repaired); err != nil {
		return fail(err, repaired)
	}
	return model.JobOutcome{
		Status:     model.StatusDone,
		Result:     repaired,
		TokensUsed: tokens,
		Cost:       cost,
	}
}

func (w *Worker) finalize(ctx context.Context, artifactID string) error {
	if w.finalizer == nil {
		return nil
	}
	if _, err := w.finalizer.TryFinalize(ctx, artifactID); err != nil {
		return fmt.Errorf("finalize artifact %s: %w", artifactID, err)
	}
	return nil
}
