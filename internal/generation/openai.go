package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"summary-engine/internal/config"
	"summary-engine/pkg/logging"
)

// OpenAIProvider OpenAI 兼容的 chat completions 接口
//
// 结构化输出通过 json_schema response format 请求；连续失败时熔断，
// 熔断期间直接返回 ErrProviderUnavailable，不再打到上游。
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	log     *logging.Logger
}

// NewOpenAIProvider 创建 OpenAI Provider
func NewOpenAIProvider(cfg config.ModelConfig, log *logging.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
	}
	if log == nil {
		log = logging.Discard()
	}
	ccfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ccfg.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		client:  openai.NewClientWithConfig(ccfg),
		model:   cfg.Name,
		timeout: cfg.Timeout,
		log:     log.Named("generation"),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai:" + cfg.Name,
		MaxRequests: 100,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// 调用方取消与请求本身有误（4xx，429 除外）不计入失败
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn("generation.breaker.state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p, nil
}

// Name 名称
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate 发起一次 chat completion
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	creq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Schema) > 0 {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
			},
		}
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.CreateChatCompletion(ctx, creq)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("chat completion (%s): %w", model, err)
	}

	resp := out.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion (%s): empty choices", model)
	}
	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}
