package queue

import (
	"context"
	"testing"
	"time"

	"summary-engine/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueConsumeAndAck(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := q.EnqueueJob(ctx, &JobMessage{JobID: "job", Index: i, Kind: model.KindOutline})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	msgs, err := q.ConsumeJobs(ctx, "c1", 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].Index)
	assert.False(t, msgs[0].EnqueuedAt.IsZero())

	msgs2, err := q.ConsumeJobs(ctx, "c2", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs2, 1)
	assert.Equal(t, 2, msgs2[0].Index)

	pending, _ := q.PendingCount(ctx)
	assert.Equal(t, int64(3), pending)

	require.NoError(t, q.AckJob(ctx, msgs[0].ID))
	pending, _ = q.PendingCount(ctx)
	assert.Equal(t, int64(2), pending)

	length, _ := q.QueueLength(ctx)
	assert.Equal(t, int64(3), length)
}

func TestMemoryQueueBlocksUntilMessage(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.EnqueueJob(ctx, &JobMessage{JobID: "late"})
	}()

	msgs, err := q.ConsumeJobs(ctx, "c1", 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", msgs[0].JobID)

	// 超时返回空
	msgs, err = q.ConsumeJobs(ctx, "c1", 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryQueueReclaim(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	now := time.Now()
	q.now = func() time.Time { return now }

	_, err := q.EnqueueJob(ctx, &JobMessage{JobID: "j1"})
	require.NoError(t, err)
	_, err = q.ConsumeJobs(ctx, "dead-consumer", 1, 0)
	require.NoError(t, err)

	reclaimed, err := q.ReclaimJobs(ctx, "c2", time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, reclaimed)

	now = now.Add(2 * time.Minute)
	reclaimed, err = q.ReclaimJobs(ctx, "c2", time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "j1", reclaimed[0].JobID)
}

func TestMemoryQueueFailureInjection(t *testing.T) {
	q := NewMemoryQueue()
	q.FailEnqueueAfter = 1
	ctx := context.Background()

	_, err := q.EnqueueJob(ctx, &JobMessage{JobID: "ok"})
	require.NoError(t, err)
	_, err = q.EnqueueJob(ctx, &JobMessage{JobID: "fail"})
	assert.Error(t, err)
	assert.Len(t, q.Messages(), 1)

	require.NoError(t, q.Close())
	_, err = q.EnqueueJob(ctx, &JobMessage{JobID: "closed"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestNewJobMessage(t *testing.T) {
	a := &model.Artifact{ID: "a1", Language: "fr", SourceLanguage: "de", Kind: model.KindExplanation, DocumentName: "Doc.pdf"}
	j := &model.Job{ID: "j1", Index: 4, Text: "bucket", EstimatedTokens: 321}
	m := NewJobMessage(a, j)
	assert.Equal(t, "a1", m.ArtifactID)
	assert.Equal(t, "j1", m.JobID)
	assert.Equal(t, 4, m.Index)
	assert.Equal(t, "fr", m.Language)
	assert.Equal(t, "de", m.SourceLanguage)
	assert.Equal(t, model.KindExplanation, m.Kind)
	assert.Equal(t, "Doc.pdf", m.DocumentName)
	assert.Equal(t, int64(321), m.EstimatedTokens)
}

func TestMemoryQueueTrimAckedKeepsUnread(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.EnqueueJob(ctx, &JobMessage{JobID: "job", Index: i})
		require.NoError(t, err)
	}
	msgs, err := q.ConsumeJobs(ctx, "c1", 3, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.NoError(t, q.AckJob(ctx, msgs[0].ID))
	require.NoError(t, q.AckJob(ctx, msgs[2].ID))

	// msgs[1] 未确认，之后的条目都保留
	n, err := q.TrimAcked(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	length, _ := q.QueueLength(ctx)
	assert.Equal(t, int64(4), length)

	rest, err := q.ConsumeJobs(ctx, "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, 3, rest[0].Index)
}
