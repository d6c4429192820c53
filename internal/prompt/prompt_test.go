package prompt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"summary-engine/internal/generation"
	"summary-engine/internal/shared/model"
)

func TestForCoversEveryKind(t *testing.T) {
	for _, k := range model.Kinds() {
		tpl, err := For(k)
		require.NoError(t, err, k)
		assert.Equal(t, k, tpl.Kind)
		assert.True(t, json.Valid(tpl.Schema), k)
		assert.NotEmpty(t, tpl.Instruction("en", ""))
	}
	_, err := For(model.Kind("poem"))
	assert.Error(t, err)
}

func TestInstructionLanguages(t *testing.T) {
	tpl, err := For(model.KindCondensation)
	require.NoError(t, err)

	same := tpl.Instruction("fr", "fr")
	assert.Contains(t, same, "French")
	assert.NotContains(t, same, "translate")

	cross := tpl.Instruction("fr", "en")
	assert.Contains(t, cross, "written in English")
	assert.Contains(t, cross, "translate")
}

func TestBuild(t *testing.T) {
	req, err := Build(model.KindOutline, "de", "", "Some bucket text.", 512)
	require.NoError(t, err)
	assert.Equal(t, "outline", req.SchemaName)
	assert.Equal(t, "Some bucket text.", req.User)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Contains(t, req.System, "German")

	_, err = Build(model.Kind("x"), "en", "", "t", 0)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		kind    model.Kind
		raw     string
		wantErr bool
		want    string
	}{
		{model.KindCondensation, `{"summary":"S","key_points":["a","b"]}`, false, "S\n- a\n- b"},
		{model.KindCondensation, `{"summary":"  ","key_points":[]}`, true, ""},
		{model.KindOutline, `{"title":"T","sections":[{"heading":"H","points":["p"]}]}`, false, "## T\n\n### H\n- p"},
		{model.KindOutline, `{"title":"T","sections":[]}`, true, ""},
		{model.KindExplanation, `{"explanation":"E","terms":[{"term":"x","definition":"y"}]}`, false, "E\n- **x**: y"},
		{model.KindExplanation, `{"terms":[]}`, true, ""},
		{model.KindCondensation, `not json`, true, ""},
	}
	for _, tt := range tests {
		r, err := Decode(tt.kind, tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, r.Markdown())
	}
}

func TestStubResponderProducesDecodableResults(t *testing.T) {
	for _, k := range model.Kinds() {
		req, err := Build(k, "en", "", "One two three. Four five six.", 100)
		require.NoError(t, err)
		resp, err := StubResponder(context.Background(), req)
		require.NoError(t, err)
		_, err = Decode(k, resp.Text)
		assert.NoError(t, err, k)
	}

	_, err := StubResponder(context.Background(), generation.Request{SchemaName: "nope"})
	assert.Error(t, err)
}
