// Package summary 摘要领域 - HTTP 处理
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"summary-engine/internal/aggregator"
	"summary-engine/internal/dispatcher"
	"summary-engine/internal/segmenter"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/storage"
	"summary-engine/pkg/logging"
)

// Dispatcher 派发入口
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) (*dispatcher.Result, error)
}

// Store 处理器需要的存储能力
type Store interface {
	storage.ArtifactStore
	storage.JobStore
	storage.BalanceStore
}

// Handler 摘要领域 HTTP 处理器
type Handler struct {
	dispatcher Dispatcher
	store      Store
	log        *logging.Logger
}

// NewHandler 创建摘要处理器
func NewHandler(d Dispatcher, store Store, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{dispatcher: d, store: store, log: log.Named("api.summary")}
}

// RegisterRoutes 注册摘要相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/summaries", h.Create)
	mux.HandleFunc("GET /api/v1/summaries", h.List)
	mux.HandleFunc("GET /api/v1/summaries/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/summaries/{id}/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/summaries/{id}/result", h.GetResult)
	mux.HandleFunc("PUT /api/v1/summaries/{id}/rating", h.Rate)
	mux.HandleFunc("GET /api/v1/balances/{owner}", h.GetBalance)
}

// ============================================================================
// 请求 / 响应
// ============================================================================

// CreateResponse 派发结果
type CreateResponse struct {
	ArtifactID string       `json:"artifact_id"`
	Status     model.Status `json:"status"`
	Jobs       int          `json:"jobs"`
	Enqueued   int          `json:"enqueued"`
	Orphaned   int          `json:"orphaned"`
	Dropped    int          `json:"dropped_sentences"`
	Reserved   int64        `json:"reserved_credits"`
}

// RatingRequest 评分请求
type RatingRequest struct {
	Rating int `json:"rating"`
}

// ============================================================================
// HTTP 处理函数
// ============================================================================

// Create 派发一次生成请求
// POST /api/v1/summaries
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req dispatcher.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, CreateResponse{
		ArtifactID: res.Artifact.ID,
		Status:     res.Artifact.Status,
		Jobs:       res.Jobs,
		Enqueued:   res.Enqueued,
		Orphaned:   res.Orphaned,
		Dropped:    res.Dropped,
		Reserved:   res.Reserved,
	})
}

// List 列出产物
// GET /api/v1/summaries?owner_id=&status=&kind=&limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ArtifactFilter{
		OwnerID: q.Get("owner_id"),
		Status:  model.Status(q.Get("status")),
		Kind:    model.Kind(q.Get("kind")),
		Limit:   queryInt(q.Get("limit"), 50),
		Offset:  queryInt(q.Get("offset"), 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	artifacts, err := h.store.ListArtifacts(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []*model.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artifacts": artifacts, "count": len(artifacts)})
}

// Get 获取产物状态
// GET /api/v1/summaries/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListJobs 列出产物的全部 Job
// GET /api/v1/summaries/{id}/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetArtifact(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	jobs, err := h.store.ListJobsByArtifact(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// GetResult 按顺序拼装结果
// GET /api/v1/summaries/{id}/result
//
// 产物未终结时也返回已完成的部分，Status 字段表明当前状态。
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := h.store.GetArtifact(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	jobs, err := h.store.ListJobsByArtifact(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregator.Assemble(a, jobs))
}

// Rate 为终态产物评分
// PUT /api/v1/summaries/{id}/rating
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	id := r.PathValue("id")
	if err := h.store.SetArtifactRating(r.Context(), id, req.Rating); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artifact_id": id, "rating": req.Rating})
}

// GetBalance 查询额度
// GET /api/v1/balances/{owner}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetBalance(r.Context(), r.PathValue("owner"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ============================================================================
// 错误映射
// ============================================================================

// StatusFor 领域错误 → HTTP 状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, dispatcher.ErrInvalidRequest),
		errors.Is(err, dispatcher.ErrInvalidPageRange),
		errors.Is(err, dispatcher.ErrDocumentNotProcessed),
		errors.Is(err, segmenter.ErrConfiguration),
		errors.Is(err, segmenter.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, dispatcher.ErrDocumentNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithContext(r.Context()).Error("api.request.failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
