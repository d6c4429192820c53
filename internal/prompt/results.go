package prompt

import (
	"encoding/json"
	"errors"
	"strings"
)

// ============================================================================
// condensation
// ============================================================================

// CondensationResult 摘要
type CondensationResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

func (r *CondensationResult) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return errors.New("summary is empty")
	}
	return nil
}

func (r *CondensationResult) Markdown() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Summary))
	for _, p := range r.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
	}
	return b.String()
}

var condensationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary", "key_points"],
  "additionalProperties": false
}`)

// ============================================================================
// outline
// ============================================================================

// OutlineSection 大纲章节
type OutlineSection struct {
	Heading string   `json:"heading"`
	Points  []string `json:"points"`
}

// OutlineResult 大纲
type OutlineResult struct {
	Title    string           `json:"title"`
	Sections []OutlineSection `json:"sections"`
}

func (r *OutlineResult) Validate() error {
	if len(r.Sections) == 0 {
		return errors.New("outline has no sections")
	}
	for _, s := range r.Sections {
		if strings.TrimSpace(s.Heading) == "" {
			return errors.New("outline section without heading")
		}
	}
	return nil
}

func (r *OutlineResult) Markdown() string {
	var b strings.Builder
	if t := strings.TrimSpace(r.Title); t != "" {
		b.WriteString("## ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	for _, s := range r.Sections {
		b.WriteString("\n### ")
		b.WriteString(strings.TrimSpace(s.Heading))
		for _, p := range s.Points {
			b.WriteString("\n- ")
			b.WriteString(strings.TrimSpace(p))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

var outlineSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "heading": {"type": "string"},
          "points": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["heading", "points"],
        "additionalProperties": false
      }
    }
  },
  "required": ["title", "sections"],
  "additionalProperties": false
}`)

// ============================================================================
// explanation
// ============================================================================

// Term 术语解释
type Term struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// ExplanationResult 通俗解释
type ExplanationResult struct {
	Explanation string `json:"explanation"`
	Terms       []Term `json:"terms"`
}

func (r *ExplanationResult) Validate() error {
	if strings.TrimSpace(r.Explanation) == "" {
		return errors.New("explanation is empty")
	}
	return nil
}

func (r *ExplanationResult) Markdown() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Explanation))
	for _, t := range r.Terms {
		b.WriteString("\n- **")
		b.WriteString(strings.TrimSpace(t.Term))
		b.WriteString("**: ")
		b.WriteString(strings.TrimSpace(t.Definition))
	}
	return b.String()
}

var explanationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "explanation": {"type": "string"},
    "terms": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "term": {"type": "string"},
          "definition": {"type": "string"}
        },
        "required": ["term", "definition"],
        "additionalProperties": false
      }
    }
  },
  "required": ["explanation", "terms"],
  "additionalProperties": false
}`)
