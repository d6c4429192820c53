package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		want     string
		terminal bool
	}{
		{StatusPending, "PENDING", false},
		{StatusProcessing, "PROCESSING", false},
		{StatusDone, "DONE", true},
		{StatusError, "ERROR", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, string(tt.status))
		assert.Equal(t, tt.terminal, tt.status.IsTerminal(), tt.want)
		assert.True(t, tt.status.Valid())
	}
	assert.False(t, Status("done").Valid())
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"condensation", KindCondensation, false},
		{" Outline ", KindOutline, false},
		{"EXPLANATION", KindExplanation, false},
		{"summary", KindCondensation, false},
		{"poem", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentSlice(t *testing.T) {
	doc := &Document{Key: "doc-1", Pages: []string{"one", "two", "three"}}

	got, err := doc.Slice(2, 3)
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", got)

	got, err = doc.Slice(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	_, err = doc.Slice(0, 1)
	assert.Error(t, err)
	_, err = doc.Slice(3, 2)
	assert.Error(t, err)
	_, err = doc.Slice(2, 4)
	assert.Error(t, err)

	_, err = (&Document{Key: "flat", Text: "text"}).Slice(1, 1)
	assert.Error(t, err)
}

func TestDocumentProcessed(t *testing.T) {
	assert.False(t, (&Document{}).Processed())
	assert.False(t, (&Document{Text: "  \n", Pages: []string{" "}}).Processed())
	assert.True(t, (&Document{Text: "hello"}).Processed())
	assert.True(t, (&Document{Pages: []string{"", "page"}}).Processed())
	assert.Equal(t, "a\nb", (&Document{Text: "ignored", Pages: []string{"a", "b"}}).Content())
}

func TestArtifactJSONSerialization(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	start, end := 2, 5
	a := &Artifact{
		ID:          "art-1",
		DocumentKey: "doc-1",
		OwnerID:     "user-1",
		Kind:        KindOutline,
		Language:    "en",
		PageStart:   &start,
		PageEnd:     &end,
		Status:      StatusProcessing,
		JobCount:    3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"outline"`)
	assert.NotContains(t, string(data), `"rating"`)

	var decoded Artifact
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.HasPageRange())
	assert.Equal(t, 5, *decoded.PageEnd)
	assert.False(t, decoded.IsTerminal())
}

func TestJobHidesBucketText(t *testing.T) {
	j := &Job{ID: "job-1", Text: "secret source", Status: StatusDone}
	data, err := json.Marshal(j)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret source")
	assert.True(t, j.IsTerminal())
}
