package segmenter

import (
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// SentenceSplitter 句子边界检测
type SentenceSplitter interface {
	Split(text string) []string
}

// PunktSplitter Punkt 无监督模型（英文训练数据，对拉丁文字语言普遍可用）
type PunktSplitter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSplitter 创建句子切分器
func NewPunktSplitter() (*PunktSplitter, error) {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load sentence tokenizer: %w", err)
	}
	return &PunktSplitter{tokenizer: t}, nil
}

// Split 返回去除首尾空白后的非空句子
func (p *PunktSplitter) Split(text string) []string {
	var out []string
	for _, s := range p.tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
