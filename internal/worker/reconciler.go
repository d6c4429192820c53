package worker

import (
	"context"
	"fmt"
	"time"

	"summary-engine/internal/config"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/queue"
	"summary-engine/internal/shared/storage"
	"summary-engine/pkg/logging"
)

// Reconciler 孤儿 Job 巡检
//
// 孤儿指仍为 PENDING 且从未入队、或入队早于 StaleThreshold 的 Job。
// 默认只检测并告警；Requeue 开启时重新入队。重复消息是安全的：
// 领取是条件更新，终态 Job 会被跳过。
type Reconciler struct {
	artifacts storage.ArtifactStore
	jobs      storage.JobStore
	publisher queue.JobPublisher
	cfg       config.ReconcileConfig
	metrics   *Metrics
	log       *logging.Logger
	now       func() time.Time
}

// SweepReport 单次巡检结果
type SweepReport struct {
	Detected int          `json:"detected"`
	Requeued int          `json:"requeued"`
	Failed   int          `json:"failed"`
	Jobs     []*model.Job `json:"jobs"`
}

// NewReconciler 创建巡检器
func NewReconciler(artifacts storage.ArtifactStore, jobs storage.JobStore, publisher queue.JobPublisher, cfg config.ReconcileConfig, metrics *Metrics, log *logging.Logger) *Reconciler {
	if log == nil {
		log = logging.Discard()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		artifacts: artifacts,
		jobs:      jobs,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		log:       log.Named("reconciler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run 周期巡检直到 ctx 取消
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconcile.started",
		"interval", r.cfg.Interval.String(),
		"stale_threshold", r.cfg.StaleThreshold.String(),
		"requeue", r.cfg.Requeue,
	)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconcile.sweep.failed", "error", err)
			}
		}
	}
}

// Sweep 执行一次巡检
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	jobs, err := r.jobs.ListOrphanedJobs(ctx, r.cfg.StaleThreshold, r.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list orphaned jobs: %w", err)
	}
	report := &SweepReport{Detected: len(jobs), Jobs: jobs}
	if len(jobs) == 0 {
		return report, nil
	}

	artifacts := make(map[string]*model.Artifact)
	for _, j := range jobs {
		r.log.Warn("reconcile.orphan",
			"artifact_id", j.ArtifactID,
			"job_id", j.ID,
			"index", j.Index,
			"never_enqueued", j.EnqueuedAt == nil,
		)
		if !r.cfg.Requeue || r.publisher == nil {
			continue
		}
		if err := r.requeue(ctx, artifacts, j); err != nil {
			report.Failed++
			r.log.Error("reconcile.requeue.failed", "job_id", j.ID, "error", err)
			continue
		}
		report.Requeued++
	}

	// 派发时一条都没入队的 Artifact 仍停在 PENDING
	for id, a := range artifacts {
		if a.Status == model.StatusPending {
			if err := r.artifacts.MarkArtifactProcessing(ctx, id); err != nil {
				r.log.Warn("reconcile.mark_processing.failed", "artifact_id", id, "error", err)
			}
		}
	}

	r.metrics.orphans(report.Detected, report.Requeued)
	r.log.Info("reconcile.sweep.done", "detected", report.Detected, "requeued", report.Requeued, "failed", report.Failed)
	return report, nil
}

func (r *Reconciler) requeue(ctx context.Context, cache map[string]*model.Artifact, j *model.Job) error {
	a, ok := cache[j.ArtifactID]
	if !ok {
		var err error
		if a, err = r.artifacts.GetArtifact(ctx, j.ArtifactID); err != nil {
			return err
		}
		cache[j.ArtifactID] = a
	}

	msg := queue.NewJobMessage(a, j)
	msg.EnqueuedAt = r.now()
	if _, err := r.publisher.EnqueueJob(ctx, msg); err != nil {
		return err
	}
	return r.jobs.MarkJobEnqueued(ctx, j.ID, msg.EnqueuedAt)
}
