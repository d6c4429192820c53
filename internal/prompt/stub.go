package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"summary-engine/internal/generation"
	"summary-engine/internal/shared/model"
)

// StubResponder 本地开发用的 mock provider：不调用模型，
// 用输入文本的前几个句子拼出符合 Schema 的结果。
func StubResponder(ctx context.Context, req generation.Request) (*generation.Response, error) {
	words := strings.Fields(req.User)
	excerpt := strings.Join(words[:min(len(words), 40)], " ")

	var out any
	switch model.Kind(req.SchemaName) {
	case model.KindOutline:
		out = OutlineResult{
			Title:    "Outline",
			Sections: []OutlineSection{{Heading: "Overview", Points: []string{excerpt}}},
		}
	case model.KindExplanation:
		out = ExplanationResult{Explanation: excerpt, Terms: []Term{}}
	case model.KindCondensation:
		out = CondensationResult{Summary: excerpt, KeyPoints: []string{}}
	default:
		return nil, fmt.Errorf("stub provider: unknown schema %q", req.SchemaName)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &generation.Response{
		Text:         string(raw),
		InputTokens:  (len(req.System) + len(req.User)) / 4,
		OutputTokens: len(raw) / 4,
		Model:        "stub",
	}, nil
}
