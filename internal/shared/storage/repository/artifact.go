// Package repository Artifact 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/storage"

	sq "github.com/Masterminds/squirrel"
)

const artifactColumns = `id, document_key, document_name, owner_id, kind, language, source_language,
	page_start, page_end, status, total_tokens, total_cost, reserved_credits, rating, job_count,
	created_at, updated_at, finished_at`

// CreateArtifactWithJobs 在同一事务中创建 Artifact 与其全部 Job
func (s *Store) CreateArtifactWithJobs(ctx context.Context, a *model.Artifact, jobs []*model.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`),
		a.ID, a.DocumentKey, a.DocumentName, a.OwnerID, a.Kind, a.Language, a.SourceLanguage,
		a.PageStart, a.PageEnd, a.Status, a.TotalTokens, a.TotalCost, a.ReservedCredits, a.Rating, a.JobCount,
		a.CreatedAt, a.UpdatedAt, a.FinishedAt)
	if err != nil {
		if s.dialect.IsDuplicateKey(err) {
			return fmt.Errorf("artifact %s: %w", a.ID, storage.ErrDuplicate)
		}
		return err
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO jobs (id, artifact_id, idx, status, bucket_text, result, tokens_used, cost,
			estimated_tokens, enqueued_at, started_at, finished_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, j := range jobs {
		_, err := stmt.ExecContext(ctx, j.ID, j.ArtifactID, j.Index, j.Status, j.Text, j.Result,
			j.TokensUsed, j.Cost, j.EstimatedTokens, j.EnqueuedAt, j.StartedAt, j.FinishedAt,
			j.CreatedAt, j.UpdatedAt)
		if err != nil {
			if s.dialect.IsDuplicateKey(err) {
				return fmt.Errorf("job %s: %w", j.ID, storage.ErrDuplicate)
			}
			return err
		}
	}

	return tx.Commit()
}

// GetArtifact 获取 Artifact
func (s *Store) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	query := s.rebind(`SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`)
	a, err := scanArtifact(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// scanArtifact 辅助函数
func scanArtifact(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Artifact, error) {
	a := &model.Artifact{}
	err := scanner.Scan(
		&a.ID, &a.DocumentKey, &a.DocumentName, &a.OwnerID, &a.Kind, &a.Language, &a.SourceLanguage,
		&a.PageStart, &a.PageEnd, &a.Status, &a.TotalTokens, &a.TotalCost, &a.ReservedCredits,
		&a.Rating, &a.JobCount, &a.CreatedAt, &a.UpdatedAt, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListArtifacts 按条件列出 Artifact（按创建时间倒序）
func (s *Store) ListArtifacts(ctx context.Context, filter model.ArtifactFilter) ([]*model.Artifact, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := s.builder().Select(artifactColumns).From("artifacts")
	if filter.OwnerID != "" {
		q = q.Where(sq.Eq{"owner_id": filter.OwnerID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Kind != "" {
		q = q.Where(sq.Eq{"kind": string(filter.Kind)})
	}
	q = q.OrderBy("created_at DESC").Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkArtifactProcessing PENDING → PROCESSING
func (s *Store) MarkArtifactProcessing(ctx context.Context, id string) error {
	query := s.rebind(`UPDATE artifacts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`)
	_, err := s.db.ExecContext(ctx, query, model.StatusProcessing, s.now(), id, model.StatusPending)
	return err
}

// FinalizeArtifact 写入终态与汇总值
//
// 条件 status NOT IN ('DONE','ERROR') 保证终态只写一次：
// 多个 Worker 同时观察到“全部终态”时只有一个 UPDATE 命中。
func (s *Store) FinalizeArtifact(ctx context.Context, id string, totals model.ArtifactTotals) (bool, error) {
	if !totals.Status.IsTerminal() {
		return false, fmt.Errorf("finalize artifact %s: status %s is not terminal", id, totals.Status)
	}
	now := s.now()
	query := s.rebind(`
		UPDATE artifacts
		SET status = $1, total_tokens = $2, total_cost = $3, updated_at = $4, finished_at = $5
		WHERE id = $6 AND status NOT IN ($7, $8)
	`)
	res, err := s.db.ExecContext(ctx, query,
		totals.Status, totals.TotalTokens, totals.TotalCost, now, now,
		id, model.StatusDone, model.StatusError)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetArtifactRating 写入用户评分（仅终态 Artifact）
func (s *Store) SetArtifactRating(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d out of range [1,5]", rating)
	}
	query := s.rebind(`UPDATE artifacts SET rating = $1, updated_at = $2 WHERE id = $3 AND status IN ($4, $5)`)
	res, err := s.db.ExecContext(ctx, query, rating, s.now(), id, model.StatusDone, model.StatusError)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// 区分不存在与非终态
	var status string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT status FROM artifacts WHERE id = $1`), id).Scan(&status)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("artifact %s is %s: %w", id, status, storage.ErrConflict)
}
