// Package repository Job 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"time"

	"summary-engine/internal/shared/model"

	sq "github.com/Masterminds/squirrel"
)

const jobColumns = `id, artifact_id, idx, status, bucket_text, result, tokens_used, cost,
	estimated_tokens, enqueued_at, started_at, finished_at, created_at, updated_at`

// GetJob 获取 Job
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	query := s.rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`)
	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

// scanJob 辅助函数
func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Job, error) {
	j := &model.Job{}
	err := scanner.Scan(
		&j.ID, &j.ArtifactID, &j.Index, &j.Status, &j.Text, &j.Result, &j.TokensUsed, &j.Cost,
		&j.EstimatedTokens, &j.EnqueuedAt, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// scanJobs 批量扫描
func scanJobs(rows *sql.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListJobsByArtifact 列出 Artifact 的全部 Job（按 Index 升序）
func (s *Store) ListJobsByArtifact(ctx context.Context, artifactID string) ([]*model.Job, error) {
	query := s.rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE artifact_id = $1 ORDER BY idx ASC`)
	rows, err := s.db.QueryContext(ctx, query, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListJobs 按条件列出 Job
func (s *Store) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := s.builder().Select(jobColumns).From("jobs")
	if filter.ArtifactID != "" {
		q = q.Where(sq.Eq{"artifact_id": filter.ArtifactID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	query, args, err := q.OrderBy("artifact_id", "idx ASC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ClaimJob PENDING → PROCESSING
//
// 条件更新保证同一个 Job 只会被一个 Worker 调用领取。
func (s *Store) ClaimJob(ctx context.Context, id string) (bool, error) {
	now := s.now()
	query := s.rebind(`UPDATE jobs SET status = $1, started_at = $2, updated_at = $3 WHERE id = $4 AND status = $5`)
	res, err := s.db.ExecContext(ctx, query, model.StatusProcessing, now, now, id, model.StatusPending)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ReleaseJob PROCESSING → PENDING
func (s *Store) ReleaseJob(ctx context.Context, id string) (bool, error) {
	query := s.rebind(`UPDATE jobs SET status = $1, started_at = NULL, updated_at = $2 WHERE id = $3 AND status = $4`)
	res, err := s.db.ExecContext(ctx, query, model.StatusPending, s.now(), id, model.StatusProcessing)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CompleteJob PROCESSING → DONE/ERROR
func (s *Store) CompleteJob(ctx context.Context, id string, outcome model.JobOutcome) (bool, error) {
	now := s.now()
	query := s.rebind(`
		UPDATE jobs
		SET status = $1, result = $2, tokens_used = $3, cost = $4, finished_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`)
	res, err := s.db.ExecContext(ctx, query,
		outcome.Status, outcome.Result, outcome.TokensUsed, outcome.Cost, now, now,
		id, model.StatusProcessing)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkJobEnqueued 记录入队时间
func (s *Store) MarkJobEnqueued(ctx context.Context, id string, at time.Time) error {
	query := s.rebind(`UPDATE jobs SET enqueued_at = $1, updated_at = $2 WHERE id = $3`)
	_, err := s.db.ExecContext(ctx, query, at.UTC(), s.now(), id)
	return err
}

// ListOrphanedJobs 列出疑似丢失消息的 Job
//
// 两类：
//   - enqueued_at 为空：派发时入队失败
//   - 入队早于阈值仍为 PENDING：消息丢失或消费者长时间不可用
func (s *Store) ListOrphanedJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.now().Add(-olderThan)
	query, args, err := s.builder().
		Select(jobColumns).
		From("jobs").
		Where(sq.Eq{"status": string(model.StatusPending)}).
		Where(sq.Or{
			sq.And{sq.Eq{"enqueued_at": nil}, sq.Lt{"created_at": cutoff}},
			sq.Lt{"enqueued_at": cutoff},
		}).
		OrderBy("created_at ASC", "idx ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}
