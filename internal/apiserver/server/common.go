// Package server API Server 路由与核心基础设施
//
// 文件组织：
//   - common.go: Handler 定义与通用工具函数
//   - handler.go: 路由与中间件
//   - metrics.go: Prometheus 指标
//
// 领域接口位于独立包（summary）。
package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"summary-engine/internal/apiserver/summary"
	"summary-engine/pkg/logging"
)

// Options Handler 可选项
type Options struct {
	// InternalSecret /api/ 下的请求必须携带 X-Internal-Secret；为空时全部拒绝
	InternalSecret string
	// Registry 指标注册表；为空时新建
	Registry *prometheus.Registry
	Logger   *logging.Logger
}

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到领域处理器
//   - 内部密钥校验
//   - HTTP 指标与访问日志
type Handler struct {
	summaries *summary.Handler
	secret    string
	registry  *prometheus.Registry
	metrics   *Metrics
	log       *logging.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(d summary.Dispatcher, store summary.Store, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Handler{
		summaries: summary.NewHandler(d, store, log),
		secret:    opts.InternalSecret,
		registry:  reg,
		metrics:   NewMetrics("summary_api", reg),
		log:       log.Named("api"),
	}
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查接口
//
// 路由: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
