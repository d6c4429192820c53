package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"summary-engine/internal/dispatcher"
	"summary-engine/internal/shared/storage/dbutil"
	"summary-engine/internal/shared/storage/repository"
)

// stubDispatcher 测试中不应被调用到派发逻辑
type stubDispatcher struct{}

func (stubDispatcher) Dispatch(context.Context, dispatcher.Request) (*dispatcher.Result, error) {
	return nil, dispatcher.ErrInvalidRequest
}

func newTestHandler(t *testing.T, secret string) (*Handler, *prometheus.Registry) {
	t.Helper()
	store, err := repository.Open(dbutil.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	h := NewHandler(stubDispatcher{}, store, Options{InternalSecret: secret, Registry: reg})
	return h, reg
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, "s3cret")

	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSecretMiddleware(t *testing.T) {
	h, _ := newTestHandler(t, "s3cret")
	router := h.Router()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"缺少密钥", "", http.StatusForbidden},
		{"错误密钥", "wrong", http.StatusForbidden},
		{"正确密钥", "s3cret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/summaries/missing", nil)
			if tt.header != "" {
				req.Header.Set(SecretHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestNoSecretConfigured(t *testing.T) {
	h, _ := newTestHandler(t, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/summaries/missing", nil)
	req.Header.Set(SecretHeader, "")
	h.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 健康检查不受影响
	w = httptest.NewRecorder()
	h.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, reg := newTestHandler(t, "s3cret")
	router := h.Router()

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/summaries/"+id, nil)
		req.Header.Set(SecretHeader, "s3cret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	// 三个不同 ID 归并为同一个路由标签
	assert.Equal(t, 3.0, testutil.ToFloat64(h.GetMetrics().HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/summaries/{id}", "404")))
	n, err := testutil.GatherAndCount(reg, "summary_api_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "summary_api_http_requests_total"))
}

func TestNormalizePathUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	assert.Equal(t, "unmatched", normalizePath(req))

	req.Pattern = "GET /api/v1/summaries/{id}"
	assert.Equal(t, "/api/v1/summaries/{id}", normalizePath(req))
}
