// Package server 路由配置
package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// SecretHeader 内部调用方携带的共享密钥请求头
const SecretHeader = "X-Internal-Secret"

// Router 返回配置好的 HTTP 路由
//
// 健康检查与指标:
//   - GET /health
//   - GET /metrics
//
// 摘要 (Summary):
//   - POST /api/v1/summaries              - 派发生成请求
//   - GET  /api/v1/summaries              - 列出产物
//   - GET  /api/v1/summaries/{id}         - 产物状态
//   - GET  /api/v1/summaries/{id}/jobs    - 产物的 Job 列表
//   - GET  /api/v1/summaries/{id}/result  - 拼装结果
//   - PUT  /api/v1/summaries/{id}/rating  - 评分
//   - GET  /api/v1/balances/{owner}       - 额度查询
func (h *Handler) Router() http.Handler {
	api := http.NewServeMux()
	h.summaries.RegisterRoutes(api)

	var apiHandler http.Handler = api
	apiHandler = h.secretMiddleware(apiHandler)
	apiHandler = h.metrics.MetricsMiddleware(apiHandler)
	apiHandler = h.accessLog(apiHandler)

	top := http.NewServeMux()
	top.HandleFunc("GET /health", h.Health)
	top.Handle("GET /metrics", MetricsHandler(h.registry))
	top.Handle("/api/", apiHandler)
	return top
}

// secretMiddleware 校验内部共享密钥；未配置密钥时拒绝所有请求
func (h *Handler) secretMiddleware(next http.Handler) http.Handler {
	if h.secret == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusForbidden, "internal secret not configured")
		})
	}
	want := []byte(h.secret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(SecretHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusForbidden, "invalid internal secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog 记录每个请求的访问日志
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		h.log.HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), clientIP(r))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	return r.RemoteAddr
}
