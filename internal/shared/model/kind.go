package model

import (
	"fmt"
	"strings"
)

// ============================================================================
// Kind - 产物类型（封闭变体）
// ============================================================================

// Kind 产物类型
//
// 三种变体各自拥有提示词模板与结果结构，选择逻辑集中在 prompt.For，
// 其它地方不应再按 Kind 分支。
type Kind string

const (
	// KindCondensation 摘要：压缩原文要点
	KindCondensation Kind = "condensation"

	// KindOutline 大纲：按结构列出章节与要点
	KindOutline Kind = "outline"

	// KindExplanation 通俗解释：用简单语言解释内容与术语
	KindExplanation Kind = "explanation"
)

// Kinds 返回全部变体
func Kinds() []Kind {
	return []Kind{KindCondensation, KindOutline, KindExplanation}
}

// Valid 是否为已知变体
func (k Kind) Valid() bool {
	switch k {
	case KindCondensation, KindOutline, KindExplanation:
		return true
	}
	return false
}

// ParseKind 解析产物类型（大小写不敏感，兼容 "summary" 别名）
func ParseKind(s string) (Kind, error) {
	v := Kind(strings.ToLower(strings.TrimSpace(s)))
	if v == "summary" {
		v = KindCondensation
	}
	if !v.Valid() {
		return "", fmt.Errorf("unknown artifact kind %q", s)
	}
	return v, nil
}
