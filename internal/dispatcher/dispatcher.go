// Package dispatcher 把一次生成请求转换为持久化的 Job 并逐个入队
//
// 顺序：校验 → 读取文档 → 页码切片 → 切分 → 估算额度 → 预扣额度 →
// 单事务写入 Artifact+Jobs → 逐个入队 → Artifact 转为 PROCESSING。
// 预扣失败时不会创建任何 Job 或消息。入队中途失败时停止循环，
// 剩余 Job 成为可检测的孤儿（enqueued_at 为空），由 Reconciler 发现。
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"summary-engine/internal/prompt"
	"summary-engine/internal/segmenter"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/queue"
	"summary-engine/internal/shared/storage"
	"summary-engine/pkg/logging"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentNotProcessed = errors.New("document text is not available yet")
	ErrInvalidPageRange     = errors.New("invalid page range")
)

// idAlphabet nanoid 字母表（URL 安全、无易混字符）
const idAlphabet = "0123456789abcdefghijkmnpqrstuvwxyz"

var validate = validator.New()

// Request 生成请求
type Request struct {
	ArtifactID  string     `json:"artifact_id" validate:"omitempty,max=64,printascii"`
	DocumentKey string     `json:"document_key" validate:"required,max=512"`
	OwnerID     string     `json:"owner_id" validate:"required,max=128"`
	Language    string     `json:"language" validate:"required,min=2,max=16"`
	Kind        model.Kind `json:"kind" validate:"required"`
	PageStart   *int       `json:"page_start" validate:"omitempty,min=1"`
	PageEnd     *int       `json:"page_end" validate:"omitempty,min=1"`
	// Cost 调用方预先计算的额度；<= 0 时按 token 数估算
	Cost int64 `json:"cost" validate:"min=0"`
}

// Result 派发结果
type Result struct {
	Artifact *model.Artifact `json:"artifact"`
	Jobs     int             `json:"jobs"`
	Enqueued int             `json:"enqueued"`
	Orphaned int             `json:"orphaned"`
	Dropped  int             `json:"dropped_sentences"`
	Reserved int64           `json:"reserved_credits"`
}

// LanguageDetector 原文语言检测
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// Deps 依赖
type Deps struct {
	Artifacts storage.ArtifactStore
	Jobs      storage.JobStore
	Documents storage.DocumentStore
	Balances  storage.BalanceStore
	Queue     queue.JobPublisher
	Segmenter *segmenter.Segmenter
	Detector  LanguageDetector // 可选
	Metrics   *Metrics         // 可选
	Logger    *logging.Logger
}

// Options 额度与预算参数
type Options struct {
	ReplyTokens        int
	CreditsPer1KTokens int64
}

// Dispatcher Job 派发器
type Dispatcher struct {
	Deps
	opts  Options
	log   *logging.Logger
	now   func() time.Time
	newID func() string
}

// New 创建派发器
func New(deps Deps, opts Options) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	if opts.CreditsPer1KTokens <= 0 {
		opts.CreditsPer1KTokens = 1
	}
	return &Dispatcher{
		Deps:  deps,
		opts:  opts,
		log:   log.Named("dispatcher"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return gonanoid.MustGenerate(idAlphabet, 21) },
	}
}

// Dispatch 派发一次生成请求
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if err := d.validate(req); err != nil {
		return nil, err
	}

	doc, err := d.Documents.GetDocument(ctx, req.DocumentKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, req.DocumentKey)
		}
		return nil, fmt.Errorf("load document %s: %w", req.DocumentKey, err)
	}
	if !doc.Processed() {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotProcessed, req.DocumentKey)
	}

	text := doc.Content()
	if req.PageStart != nil {
		if text, err = doc.Slice(*req.PageStart, *req.PageEnd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPageRange, err)
		}
	}

	var sourceLang string
	if d.Detector != nil {
		sourceLang, _ = d.Detector.Detect(text)
	}

	tpl, err := prompt.For(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	instruction := tpl.Instruction(req.Language, sourceLang)
	buckets, stats, err := d.Segmenter.Segment(text, instruction)
	if err != nil {
		return nil, err
	}

	instructionTokens := d.Segmenter.Counter().Count(instruction)
	credits := req.Cost
	if credits <= 0 {
		credits = d.estimateCredits(buckets, instructionTokens)
	}

	// 预扣失败则什么都不创建
	if err := d.Balances.Reserve(ctx, req.OwnerID, credits); err != nil {
		return nil, err
	}

	artifact, jobs := d.build(req, doc, sourceLang, credits, buckets, instructionTokens)
	if err := d.Artifacts.CreateArtifactWithJobs(ctx, artifact, jobs); err != nil {
		if rerr := d.Balances.Release(context.WithoutCancel(ctx), req.OwnerID, credits); rerr != nil {
			d.log.Error("dispatch.release.failed", "artifact_id", artifact.ID, "owner_id", req.OwnerID, "credits", credits, "error", rerr)
		}
		return nil, err
	}

	res := &Result{
		Artifact: artifact,
		Jobs:     len(jobs),
		Dropped:  stats.Dropped,
		Reserved: credits,
	}
	res.Enqueued = d.enqueue(ctx, artifact, jobs)
	res.Orphaned = len(jobs) - res.Enqueued

	if res.Enqueued > 0 {
		if err := d.Artifacts.MarkArtifactProcessing(ctx, artifact.ID); err != nil {
			d.log.Warn("dispatch.mark_processing.failed", "artifact_id", artifact.ID, "error", err)
		} else {
			artifact.Status = model.StatusProcessing
		}
	}

	d.Metrics.observeDispatch(req.Kind, res)
	d.log.Info("dispatch.done",
		"artifact_id", artifact.ID,
		"kind", req.Kind,
		"jobs", res.Jobs,
		"enqueued", res.Enqueued,
		"orphaned", res.Orphaned,
		"dropped_sentences", res.Dropped,
		"credits", credits,
	)
	return res, nil
}

func (d *Dispatcher) validate(req Request) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	if (req.PageStart == nil) != (req.PageEnd == nil) {
		return fmt.Errorf("%w: page_start and page_end must be given together", ErrInvalidPageRange)
	}
	if req.PageStart != nil && *req.PageStart > *req.PageEnd {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidPageRange, *req.PageStart, *req.PageEnd)
	}
	return nil
}

// estimateCredits ceil(总 token / 1000) × 每千 token 额度，至少 1
func (d *Dispatcher) estimateCredits(buckets []model.Bucket, instructionTokens int) int64 {
	var total int64
	for _, b := range buckets {
		total += int64(b.Tokens + instructionTokens + d.opts.ReplyTokens)
	}
	credits := (total + 999) / 1000 * d.opts.CreditsPer1KTokens
	if credits < 1 {
		credits = 1
	}
	return credits
}

func (d *Dispatcher) build(req Request, doc *model.Document, sourceLang string, credits int64, buckets []model.Bucket, instructionTokens int) (*model.Artifact, []*model.Job) {
	now := d.now()
	id := req.ArtifactID
	if id == "" {
		id = d.newID()
	}
	artifact := &model.Artifact{
		ID:              id,
		DocumentKey:     doc.Key,
		DocumentName:    doc.Name,
		OwnerID:         req.OwnerID,
		Kind:            req.Kind,
		Language:        req.Language,
		SourceLanguage:  sourceLang,
		PageStart:       req.PageStart,
		PageEnd:         req.PageEnd,
		Status:          model.StatusPending,
		ReservedCredits: credits,
		JobCount:        len(buckets),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	jobs := make([]*model.Job, len(buckets))
	for i, b := range buckets {
		jobs[i] = &model.Job{
			ID:              d.newID(),
			ArtifactID:      id,
			Index:           b.Index,
			Status:          model.StatusPending,
			Text:            b.Text,
			EstimatedTokens: int64(b.Tokens + instructionTokens + d.opts.ReplyTokens),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}
	return artifact, jobs
}

// enqueue 按 Index 顺序入队，首个失败即停止，返回成功数
func (d *Dispatcher) enqueue(ctx context.Context, artifact *model.Artifact, jobs []*model.Job) int {
	for i, j := range jobs {
		msg := queue.NewJobMessage(artifact, j)
		msg.EnqueuedAt = d.now()

		msgID, err := d.Queue.EnqueueJob(ctx, msg)
		if err != nil {
			d.log.Error("dispatch.enqueue.failed",
				"artifact_id", artifact.ID,
				"job_id", j.ID,
				"index", j.Index,
				"orphaned", len(jobs)-i,
				"error", err,
			)
			return i
		}
		if err := d.Jobs.MarkJobEnqueued(ctx, j.ID, msg.EnqueuedAt); err != nil {
			d.log.Warn("dispatch.mark_enqueued.failed", "job_id", j.ID, "message_id", msgID, "error", err)
		}
	}
	return len(jobs)
}
