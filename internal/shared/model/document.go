package model

import (
	"fmt"
	"strings"
)

// Document 已完成文本提取的源文档
//
// 文本提取（PDF/图片/音频转写）不在本系统范围内，这里只消费提取结果。
// Pages 为按页切分的文本；只有整段 Text 的文档不支持页码范围。
type Document struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	OwnerID string   `json:"owner_id"`
	Text    string   `json:"text"`
	Pages   []string `json:"pages,omitempty"`
}

// Processed 文本是否已提取完成
func (d *Document) Processed() bool {
	if strings.TrimSpace(d.Text) != "" {
		return true
	}
	for _, p := range d.Pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// PageCount 页数
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Content 返回全文（有分页时按页拼接）
func (d *Document) Content() string {
	if len(d.Pages) == 0 {
		return d.Text
	}
	return strings.Join(d.Pages, "\n")
}

// Slice 返回 [start, end] 页（1 起始，闭区间）的文本
func (d *Document) Slice(start, end int) (string, error) {
	if start < 1 || end < start {
		return "", fmt.Errorf("invalid page range [%d,%d]", start, end)
	}
	if len(d.Pages) == 0 {
		return "", fmt.Errorf("document %s has no page information", d.Key)
	}
	if end > len(d.Pages) {
		return "", fmt.Errorf("page range [%d,%d] exceeds %d pages", start, end, len(d.Pages))
	}
	return strings.Join(d.Pages[start-1:end], "\n"), nil
}
