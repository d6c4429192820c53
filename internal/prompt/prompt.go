// Package prompt 产物类型的提示词与结果结构
//
// 每种 Kind 对应一个 Template：指令文本、JSON Schema 与结果解码器。
// For 是唯一的分派点，调用方不按 Kind 写分支。
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"summary-engine/internal/generation"
	"summary-engine/internal/langdetect"
	"summary-engine/internal/shared/model"
)

// Result 解码后的单个 Job 结果
type Result interface {
	// Validate 检查必填字段
	Validate() error
	// Markdown 渲染为可拼接的文本
	Markdown() string
}

// Template 单个 Kind 的提示词模板
type Template struct {
	Kind       model.Kind
	SchemaName string
	Schema     json.RawMessage
	task       string
	newResult  func() Result
}

var catalogue = map[model.Kind]*Template{
	model.KindCondensation: {
		Kind:       model.KindCondensation,
		SchemaName: "condensation",
		Schema:     condensationSchema,
		task: "Condense the passage below. Keep every important fact, figure and conclusion; drop repetition and filler. " +
			"Return a short prose summary and a list of key points.",
		newResult: func() Result { return &CondensationResult{} },
	},
	model.KindOutline: {
		Kind:       model.KindOutline,
		SchemaName: "outline",
		Schema:     outlineSchema,
		task: "Produce a structural outline of the passage below: a title and ordered sections, " +
			"each with a heading and the points it covers, following the order of the source.",
		newResult: func() Result { return &OutlineResult{} },
	},
	model.KindExplanation: {
		Kind:       model.KindExplanation,
		SchemaName: "explanation",
		Schema:     explanationSchema,
		task: "Explain the passage below in plain language for a reader with no background in the subject. " +
			"Define any technical terms it relies on.",
		newResult: func() Result { return &ExplanationResult{} },
	},
}

// For 返回 Kind 对应的模板
func For(kind model.Kind) (*Template, error) {
	t, ok := catalogue[kind]
	if !ok {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
	return t, nil
}

// Instruction 渲染系统指令（切分预算按渲染后的文本计算）
func (t *Template) Instruction(language, sourceLanguage string) string {
	var b strings.Builder
	b.WriteString("You are a careful technical writer working on one part of a longer document. ")
	b.WriteString(t.task)
	b.WriteString(" Write the output in ")
	b.WriteString(langdetect.Name(language))
	b.WriteString(".")
	if sourceLanguage != "" && !strings.EqualFold(sourceLanguage, language) {
		b.WriteString(" The passage is written in ")
		b.WriteString(langdetect.Name(sourceLanguage))
		b.WriteString("; translate as you go.")
	}
	b.WriteString(" Respond with a single JSON object that matches the provided schema and nothing else.")
	return b.String()
}

// Decode 解析并校验修复后的 JSON
func (t *Template) Decode(raw string) (Result, error) {
	r := t.newResult()
	if err := json.Unmarshal([]byte(raw), r); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", t.Kind, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s result: %w", t.Kind, err)
	}
	return r, nil
}

// Build 构造生成请求
func Build(kind model.Kind, language, sourceLanguage, text string, maxTokens int) (generation.Request, error) {
	t, err := For(kind)
	if err != nil {
		return generation.Request{}, err
	}
	return generation.Request{
		System:     t.Instruction(language, sourceLanguage),
		User:       text,
		SchemaName: t.SchemaName,
		Schema:     t.Schema,
		MaxTokens:  maxTokens,
	}, nil
}

// Decode 按 Kind 解码
func Decode(kind model.Kind, raw string) (Result, error) {
	t, err := For(kind)
	if err != nil {
		return nil, err
	}
	return t.Decode(raw)
}
