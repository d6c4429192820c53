// Package repair 尽力修复模型输出的截断/畸形 JSON
//
// 修复顺序：
//  1. 原样解析
//  2. 去掉 markdown 代码围栏与 JSON 之前的说明文字
//  3. 字符串感知的括号补全（补齐未闭合字符串、去掉尾随逗号、悬空的 key/冒号补 null）
//  4. 按解析器报错位置逐个转义字符串内部未转义的引号（有上限）
//
// 仍无法解析时返回 ErrUnrepairable，调用方把 Job 标记为 ERROR，不重试。
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnrepairable 无法修复
var ErrUnrepairable = errors.New("unrepairable structured output")

// maxQuoteEscapes 引号转义轮数上限
const maxQuoteEscapes = 64

// Repair 返回可解析的 JSON 文本
func Repair(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty output", ErrUnrepairable)
	}
	if json.Valid([]byte(s)) {
		return s, nil
	}

	s = escapeControls(stripFences(s))
	if json.Valid([]byte(s)) {
		return s, nil
	}

	candidate := Balance(s)
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	var lastErr error
	for i := 0; i < maxQuoteEscapes; i++ {
		var v any
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil {
			return candidate, nil
		}
		lastErr = err

		var syn *json.SyntaxError
		if !errors.As(err, &syn) {
			break
		}
		pos := offendingQuote(s, int(syn.Offset)-1)
		if pos < 0 {
			break
		}
		s = s[:pos] + `\` + s[pos:]
		candidate = Balance(s)
	}
	return "", fmt.Errorf("%w: %v", ErrUnrepairable, lastErr)
}

// stripFences 去掉 ``` 围栏及首个 { / [ 之前的文字
func stripFences(s string) string {
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = rest
	}
	s = strings.TrimSpace(s)
	if k := strings.IndexAny(s, "{["); k > 0 {
		s = s[k:]
	}
	return s
}

type frame struct {
	closer    byte
	expectKey bool
}

// Balance 补全未闭合的字符串与括号
//
// 扫描时跟踪是否位于字符串内（未转义的引号切换状态），只在末尾追加内容，
// 已有字节保持原位；顶层值闭合后的多余文字被截掉。
func Balance(s string) string {
	var (
		stack        []frame
		inString     bool
		isKey        bool
		escaped      bool
		pendingColon bool
		started      bool
	)

	end := len(s)
scan:
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				pendingColon = isKey
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			n := len(stack)
			isKey = n > 0 && stack[n-1].closer == '}' && stack[n-1].expectKey
		case '{':
			stack = append(stack, frame{closer: '}', expectKey: true})
			started = true
		case '[':
			stack = append(stack, frame{closer: ']'})
			started = true
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1].closer == c {
				stack = stack[:n-1]
			}
			if started && len(stack) == 0 {
				end = i + 1
				break scan
			}
		case ':':
			pendingColon = false
			if n := len(stack); n > 0 {
				stack[n-1].expectKey = false
			}
		case ',':
			if n := len(stack); n > 0 && stack[n-1].closer == '}' {
				stack[n-1].expectKey = true
			}
		}
	}

	res := s[:end]
	if inString {
		if escaped {
			res = res[:len(res)-1]
		}
		res += `"`
		pendingColon = isKey
	}
	res = strings.TrimRight(res, " \t\r\n")
	switch {
	case pendingColon:
		res += ":null"
	case strings.HasSuffix(res, ":"):
		res += "null"
	}
	res = strings.TrimSuffix(res, ",")

	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		closers.WriteByte(stack[i].closer)
	}
	return res + closers.String()
}

// escapeControls 把字符串字面量内的原始控制字符改写为转义序列
func escapeControls(s string) string {
	if strings.IndexFunc(s, func(r rune) bool { return r < 0x20 }) < 0 {
		return s
	}
	var (
		out      strings.Builder
		inString bool
		escaped  bool
	)
	out.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			out.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		case c == '\n':
			out.WriteString(`\n`)
			continue
		case c == '\r':
			out.WriteString(`\r`)
			continue
		case c == '\t':
			out.WriteString(`\t`)
			continue
		case c < 0x20:
			fmt.Fprintf(&out, `\u%04x`, c)
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

// offendingQuote 定位提前闭合字符串的引号
//
// bad 是解析器报错的字节位置。只有当 bad 之前最近的非空白字符是未转义引号，
// 且其后仍有引号可以闭合字符串时才返回该位置，否则返回 -1。
func offendingQuote(s string, bad int) int {
	if bad <= 0 || bad >= len(s) {
		return -1
	}
	i := bad - 1
	for i > 0 && strings.IndexByte(" \t\r\n", s[i]) >= 0 {
		i--
	}
	if i <= 0 || s[i] != '"' || isEscaped(s, i) {
		return -1
	}
	for j := bad; j < len(s); j++ {
		if s[j] == '"' && !isEscaped(s, j) {
			return i
		}
	}
	return -1
}

// isEscaped s[i] 前是否有奇数个反斜杠
func isEscaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
