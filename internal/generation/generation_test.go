package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"summary-engine/internal/config"
)

func TestPricingCost(t *testing.T) {
	p := Pricing{InputPer1K: 0.15, OutputPer1K: 0.6}
	assert.InDelta(t, 0.15+0.3, p.Cost(1000, 500), 1e-9)
	assert.Equal(t, 0.0, Pricing{}.Cost(1000, 1000))
}

func TestScriptedProvider(t *testing.T) {
	p := NewScriptedProvider(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: req.User, InputTokens: 3, OutputTokens: 2}, nil
	})
	resp, err := p.Generate(context.Background(), Request{User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 5, resp.TotalTokens())
	assert.Len(t, p.Requests(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(config.ModelConfig{Name: "m"}, nil)
	assert.Error(t, err)
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":120,"completion_tokens":30,"total_tokens":150}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.ModelConfig{
		Name: "gpt-test", APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), Request{
		System:     "sys",
		User:       "text",
		SchemaName: "condensation",
		Schema:     json.RawMessage(`{"type":"object"}`),
		MaxTokens:  256,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, resp.Text)
	assert.Equal(t, 120, resp.InputTokens)
	assert.Equal(t, 30, resp.OutputTokens)

	assert.Equal(t, "gpt-test", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
}

func TestOpenAIProviderCircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.ModelConfig{Name: "m", APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := p.Generate(context.Background(), Request{User: "x"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrProviderUnavailable))
	}

	_, err = p.Generate(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProviderClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.ModelConfig{Name: "m", APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := p.Generate(context.Background(), Request{User: "x"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrProviderUnavailable))
	}
}
