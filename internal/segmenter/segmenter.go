// Package segmenter 按 token 预算把文档切分为句子对齐的 Bucket
//
// 可用预算 = 上下文窗口 − 指令 token − 预留回复 token − 安全余量。
// 连续句子贪心装入当前 Bucket，放不下时另起一个；单句超过预算时丢弃该句。
package segmenter

import (
	"errors"
	"fmt"
	"strings"

	"summary-engine/internal/config"
	"summary-engine/internal/shared/model"
)

var (
	// ErrConfiguration 指令本身已占满上下文窗口
	ErrConfiguration = errors.New("instruction does not fit the model context window")
	// ErrEmptyContent 无法产出任何 Bucket
	ErrEmptyContent = errors.New("no content to segment")
)

// Config 模型预算参数
type Config struct {
	ContextWindow int
	ReplyTokens   int
	SafetyMargin  int
}

// Stats 切分统计
type Stats struct {
	Sentences       int `json:"sentences"`
	Dropped         int `json:"dropped"`
	MaxBucketTokens int `json:"max_bucket_tokens"`
	TotalTokens     int `json:"total_tokens"`
}

// Segmenter 文本切分器，可并发使用
type Segmenter struct {
	counter  TokenCounter
	splitter SentenceSplitter
	cfg      Config
}

// New 创建切分器
func New(counter TokenCounter, splitter SentenceSplitter, cfg Config) *Segmenter {
	return &Segmenter{counter: counter, splitter: splitter, cfg: cfg}
}

// NewFromConfig 按模型配置创建切分器（tiktoken 或估算计数 + Punkt 句子切分）
func NewFromConfig(cfg config.ModelConfig) (*Segmenter, error) {
	counter, err := NewCounter(cfg.Tokenizer, cfg.BytesPerToken)
	if err != nil {
		return nil, err
	}
	splitter, err := NewPunktSplitter()
	if err != nil {
		return nil, err
	}
	return New(counter, splitter, Config{
		ContextWindow: cfg.ContextWindow,
		ReplyTokens:   cfg.ReplyTokens,
		SafetyMargin:  cfg.SafetyMargin,
	}), nil
}

// Counter 返回 token 计数器
func (s *Segmenter) Counter() TokenCounter {
	return s.counter
}

// MaxBucketTokens 单个 Bucket 的 token 上限
func (s *Segmenter) MaxBucketTokens(instruction string) int {
	return s.cfg.ContextWindow - s.counter.Count(instruction) - s.cfg.ReplyTokens - s.cfg.SafetyMargin
}

// Segment 切分文本
//
// Bucket 按原文顺序排列且互不重叠；按顺序拼接即原句序列去掉被丢弃的超长句。
func (s *Segmenter) Segment(text, instruction string) ([]model.Bucket, Stats, error) {
	limit := s.MaxBucketTokens(instruction)
	stats := Stats{MaxBucketTokens: limit}
	if limit <= 0 {
		return nil, stats, fmt.Errorf("%w: budget %d (window %d, reply %d, margin %d)",
			ErrConfiguration, limit, s.cfg.ContextWindow, s.cfg.ReplyTokens, s.cfg.SafetyMargin)
	}
	if strings.TrimSpace(text) == "" {
		return nil, stats, ErrEmptyContent
	}

	var (
		buckets []model.Bucket
		current []string
		tokens  int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		buckets = append(buckets, model.Bucket{
			Index:     len(buckets),
			Text:      joinSentences(current),
			Tokens:    tokens,
			Sentences: len(current),
		})
		stats.TotalTokens += tokens
		current = nil
		tokens = 0
	}

	// 拼接后的文本重新计数：分隔符和跨句合并都可能让总数大于逐句之和
	for _, sentence := range s.splitter.Split(text) {
		stats.Sentences++
		n := s.counter.Count(sentence)
		if n > limit {
			stats.Dropped++
			continue
		}
		if len(current) > 0 {
			joined := s.counter.Count(joinSentences(append(current[:len(current):len(current)], sentence)))
			if joined <= limit {
				current = append(current, sentence)
				tokens = joined
				continue
			}
			flush()
		}
		current = append(current, sentence)
		tokens = n
	}
	flush()

	if len(buckets) == 0 {
		return nil, stats, fmt.Errorf("%w: %d sentences, %d exceed the bucket budget of %d tokens",
			ErrEmptyContent, stats.Sentences, stats.Dropped, limit)
	}
	return buckets, stats, nil
}

func joinSentences(sentences []string) string {
	return strings.Join(sentences, " ")
}
