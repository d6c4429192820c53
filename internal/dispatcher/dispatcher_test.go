package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"summary-engine/internal/segmenter"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/queue"
	"summary-engine/internal/shared/storage"
	"summary-engine/internal/shared/storage/dbutil"
	"summary-engine/internal/shared/storage/repository"
)

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

type lineSplitter struct{}

func (lineSplitter) Split(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

type fixedDetector string

func (f fixedDetector) Detect(string) (string, bool) { return string(f), f != "" }

type env struct {
	store *repository.Store
	queue *queue.MemoryQueue
	disp  *Dispatcher
	reg   *prometheus.Registry
}

// lines 生成 n 行、每行 words 个词的文本
func lines(n, words int) string {
	var b []string
	for i := 0; i < n; i++ {
		b = append(b, strings.TrimSpace(strings.Repeat(fmt.Sprintf("s%d ", i), words)))
	}
	return strings.Join(b, "\n")
}

func newEnv(t *testing.T, window int) *env {
	t.Helper()
	store, err := repository.Open(dbutil.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := queue.NewMemoryQueue()
	reg := prometheus.NewRegistry()
	seg := segmenter.New(wordCounter{}, lineSplitter{}, segmenter.Config{ContextWindow: window})

	d := New(Deps{
		Artifacts: store,
		Jobs:      store,
		Documents: store,
		Balances:  store,
		Queue:     q,
		Segmenter: seg,
		Detector:  fixedDetector("en"),
		Metrics:   NewMetrics("test", reg),
	}, Options{ReplyTokens: 10, CreditsPer1KTokens: 2})
	return &env{store: store, queue: q, disp: d, reg: reg}
}

func (e *env) putDoc(t *testing.T, doc *model.Document) {
	t.Helper()
	require.NoError(t, e.store.PutDocument(context.Background(), doc))
}

func intPtr(v int) *int { return &v }

func TestDispatchCreatesAndEnqueuesJobs(t *testing.T) {
	// 指令约 60 词，窗口 200 → 每个 Bucket 最多约 140 词，每行 10 词
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "doc-1", Name: "Report.pdf", OwnerID: "u1", Text: lines(40, 10)})
	require.NoError(t, e.store.Credit(ctx, "u1", 100))

	res, err := e.disp.Dispatch(ctx, Request{
		ArtifactID: "art-1", DocumentKey: "doc-1", OwnerID: "u1", Language: "fr", Kind: model.KindCondensation,
	})
	require.NoError(t, err)
	assert.Equal(t, "art-1", res.Artifact.ID)
	assert.Greater(t, res.Jobs, 1)
	assert.Equal(t, res.Jobs, res.Enqueued)
	assert.Equal(t, 0, res.Orphaned)

	a, err := e.store.GetArtifact(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, a.Status)
	assert.Equal(t, "en", a.SourceLanguage)
	assert.Equal(t, "Report.pdf", a.DocumentName)
	assert.Equal(t, res.Jobs, a.JobCount)
	assert.Equal(t, res.Reserved, a.ReservedCredits)

	jobs, err := e.store.ListJobsByArtifact(ctx, "art-1")
	require.NoError(t, err)
	require.Len(t, jobs, res.Jobs)
	for i, j := range jobs {
		assert.Equal(t, i, j.Index)
		assert.Equal(t, model.StatusPending, j.Status)
		assert.NotNil(t, j.EnqueuedAt)
		assert.Greater(t, j.EstimatedTokens, int64(0))
	}

	msgs := e.queue.Messages()
	require.Len(t, msgs, res.Jobs)
	for i, m := range msgs {
		assert.Equal(t, i, m.Index)
		assert.Equal(t, jobs[i].ID, m.JobID)
		assert.Equal(t, "art-1", m.ArtifactID)
		assert.Equal(t, "fr", m.Language)
		assert.Equal(t, "en", m.SourceLanguage)
		assert.Equal(t, model.KindCondensation, m.Kind)
		assert.Equal(t, "Report.pdf", m.DocumentName)
		assert.NotEmpty(t, m.Text)
	}

	bal, err := e.store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, res.Reserved, bal.Reserved)
	assert.Equal(t, 100-res.Reserved, bal.Available)

	assert.Equal(t, float64(res.Jobs), testutil.ToFloat64(e.disp.Metrics.JobsCreated))
}

func TestDispatchUsesRequestCost(t *testing.T) {
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Text: lines(3, 5)})
	require.NoError(t, e.store.Credit(ctx, "u1", 10))

	res, err := e.disp.Dispatch(ctx, Request{DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindOutline, Cost: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Reserved)
	assert.NotEmpty(t, res.Artifact.ID)
}

func TestDispatchInsufficientBalanceCreatesNothing(t *testing.T) {
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Text: lines(10, 10)})
	require.NoError(t, e.store.Credit(ctx, "u1", 1))

	_, err := e.disp.Dispatch(ctx, Request{ArtifactID: "a", DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindOutline, Cost: 50})
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)

	_, err = e.store.GetArtifact(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	jobs, err := e.store.ListJobs(ctx, model.JobFilter{ArtifactID: "a"})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, e.queue.Messages())
}

func TestDispatchPartialEnqueueFailure(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Text: lines(30, 10)})
	require.NoError(t, e.store.Credit(ctx, "u1", 1000))
	e.queue.FailEnqueueAfter = 2

	res, err := e.disp.Dispatch(ctx, Request{ArtifactID: "a", DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindCondensation})
	require.NoError(t, err)
	require.Greater(t, res.Jobs, 2)
	assert.Equal(t, 2, res.Enqueued)
	assert.Equal(t, res.Jobs-2, res.Orphaned)

	jobs, err := e.store.ListJobsByArtifact(ctx, "a")
	require.NoError(t, err)
	for _, j := range jobs {
		if j.Index < 2 {
			assert.NotNil(t, j.EnqueuedAt, j.Index)
		} else {
			assert.Nil(t, j.EnqueuedAt, j.Index)
		}
	}
	assert.Equal(t, float64(res.Orphaned), testutil.ToFloat64(e.disp.Metrics.JobsOrphaned))
}

func TestDispatchNothingEnqueuedLeavesArtifactPending(t *testing.T) {
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Text: lines(2, 5)})
	require.NoError(t, e.store.Credit(ctx, "u1", 100))
	require.NoError(t, e.queue.Close())

	res, err := e.disp.Dispatch(ctx, Request{ArtifactID: "a", DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindExplanation})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Enqueued)

	a, err := e.store.GetArtifact(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, a.Status)
}

func TestDispatchDuplicateArtifactReleasesReservation(t *testing.T) {
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Text: lines(2, 5)})
	require.NoError(t, e.store.Credit(ctx, "u1", 100))

	req := Request{ArtifactID: "dup", DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindOutline, Cost: 10}
	_, err := e.disp.Dispatch(ctx, req)
	require.NoError(t, err)

	_, err = e.disp.Dispatch(ctx, req)
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	bal, err := e.store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), bal.Available)
	assert.Equal(t, int64(10), bal.Reserved)
}

func TestDispatchPageRange(t *testing.T) {
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Pages: []string{"page one text", "page two text", "page three text"}})
	require.NoError(t, e.store.Credit(ctx, "u1", 100))

	res, err := e.disp.Dispatch(ctx, Request{
		ArtifactID: "a", DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindOutline,
		PageStart: intPtr(2), PageEnd: intPtr(3),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Jobs)

	msgs := e.queue.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "page two text page three text", msgs[0].Text)

	a, err := e.store.GetArtifact(ctx, "a")
	require.NoError(t, err)
	require.True(t, a.HasPageRange())
	assert.Equal(t, 2, *a.PageStart)
}

func TestDispatchRequestErrors(t *testing.T) {
	e := newEnv(t, 200)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "doc", OwnerID: "u1", Text: lines(3, 3)})
	e.putDoc(t, &model.Document{Key: "raw", OwnerID: "u1"})
	e.putDoc(t, &model.Document{Key: "paged", OwnerID: "u1", Pages: []string{"a", "b"}})
	require.NoError(t, e.store.Credit(ctx, "u1", 1000))

	base := Request{DocumentKey: "doc", OwnerID: "u1", Language: "en", Kind: model.KindCondensation}
	tests := []struct {
		name   string
		mutate func(r *Request)
		want   error
	}{
		{"missing owner", func(r *Request) { r.OwnerID = "" }, ErrInvalidRequest},
		{"missing language", func(r *Request) { r.Language = "" }, ErrInvalidRequest},
		{"unknown kind", func(r *Request) { r.Kind = "poem" }, ErrInvalidRequest},
		{"negative cost", func(r *Request) { r.Cost = -1 }, ErrInvalidRequest},
		{"unknown document", func(r *Request) { r.DocumentKey = "nope" }, ErrDocumentNotFound},
		{"unprocessed document", func(r *Request) { r.DocumentKey = "raw" }, ErrDocumentNotProcessed},
		{"start without end", func(r *Request) { r.PageStart = intPtr(1) }, ErrInvalidPageRange},
		{"start after end", func(r *Request) { r.PageStart, r.PageEnd = intPtr(3), intPtr(2) }, ErrInvalidPageRange},
		{"zero page", func(r *Request) { r.PageStart, r.PageEnd = intPtr(0), intPtr(1) }, ErrInvalidRequest},
		{"range on unpaged document", func(r *Request) { r.PageStart, r.PageEnd = intPtr(1), intPtr(1) }, ErrInvalidPageRange},
		{"range beyond pages", func(r *Request) {
			r.DocumentKey = "paged"
			r.PageStart, r.PageEnd = intPtr(1), intPtr(5)
		}, ErrInvalidPageRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := e.disp.Dispatch(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, e.queue.Messages())
}

func TestDispatchSegmenterErrors(t *testing.T) {
	// 窗口小于指令长度
	e := newEnv(t, 5)
	ctx := context.Background()
	e.putDoc(t, &model.Document{Key: "d", OwnerID: "u1", Text: "some text"})
	require.NoError(t, e.store.Credit(ctx, "u1", 100))

	_, err := e.disp.Dispatch(ctx, Request{DocumentKey: "d", OwnerID: "u1", Language: "en", Kind: model.KindOutline})
	assert.True(t, errors.Is(err, segmenter.ErrConfiguration), err)

	bal, err := e.store.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Reserved)
}

func TestEstimateCredits(t *testing.T) {
	d := New(Deps{}, Options{ReplyTokens: 100, CreditsPer1KTokens: 3})
	buckets := []model.Bucket{{Tokens: 800}, {Tokens: 900}}
	// (800+100+100) + (900+100+100) = 2100 → ceil 3 × 3
	assert.Equal(t, int64(9), d.estimateCredits(buckets, 100))
	assert.Equal(t, int64(1), New(Deps{}, Options{}).estimateCredits(nil, 0))
}
