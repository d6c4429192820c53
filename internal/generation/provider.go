// Package generation 模型生成调用
//
// Provider 是唯一的模型边界：输入 system/user 提示与可选 JSON Schema，
// 输出文本与服务端报告的输入/输出 token 数。
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrProviderUnavailable 熔断器打开，调用被拒绝
var ErrProviderUnavailable = errors.New("generation provider unavailable")

// Request 一次生成请求
type Request struct {
	Model       string
	System      string
	User        string
	SchemaName  string
	Schema      json.RawMessage
	MaxTokens   int
	Temperature float32
}

// Response 生成结果
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// TotalTokens 输入+输出
func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider 生成服务
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Pricing 每 1000 token 的美元价格
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost 按服务端报告的 token 数估算费用
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
}

// ============================================================================
// ScriptedProvider - 测试与本地开发
// ============================================================================

// ResponderFunc 根据请求生成响应
type ResponderFunc func(ctx context.Context, req Request) (*Response, error)

// ScriptedProvider 由回调决定响应，并记录所有请求
type ScriptedProvider struct {
	mu       sync.Mutex
	respond  ResponderFunc
	requests []Request
}

// NewScriptedProvider 创建脚本化 Provider
func NewScriptedProvider(fn ResponderFunc) *ScriptedProvider {
	return &ScriptedProvider{respond: fn}
}

// Name 名称
func (p *ScriptedProvider) Name() string { return "mock" }

// Generate 调用回调
func (p *ScriptedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.respond(ctx, req)
}

// Requests 已收到的请求快照
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}
