package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"无分隔符", "a\nb", []string{"a\nb"}},
		{"两页", "a\n---\nb", []string{"a", "b"}},
		{"分隔符带空白", "a\n  ---  \nb\n---\nc", []string{"a", "b", "c"}},
		{"行内不切分", "a --- b", []string{"a --- b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitPages(tt.text, "---"))
		})
	}
}
