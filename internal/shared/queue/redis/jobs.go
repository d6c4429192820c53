// Package redis JobQueue 操作
package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/queue"
)

// EnqueueJob 将 Job 加入队列
//
// 不带 MAXLEN：按长度裁剪会删掉尚未投递的消息，Stream 由 TrimAcked 按确认进度回收。
func (s *Store) EnqueueJob(ctx context.Context, msg *queue.JobMessage) (string, error) {
	enqueuedAt := msg.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"job_id":           msg.JobID,
			"artifact_id":      msg.ArtifactID,
			"idx":              strconv.Itoa(msg.Index),
			"text":             msg.Text,
			"language":         msg.Language,
			"source_language":  msg.SourceLanguage,
			"kind":             string(msg.Kind),
			"document_name":    msg.DocumentName,
			"estimated_tokens": strconv.FormatInt(msg.EstimatedTokens, 10),
			"enqueued_at":      enqueuedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	return s.client.XAdd(ctx, args).Result()
}

// EnsureGroup 创建 Worker 消费者组
func (s *Store) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ConsumeJobs 消费队列中的新 Job
func (s *Store) ConsumeJobs(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*queue.JobMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumerID,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    blockTimeout,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var messages []*queue.JobMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, parseJobMessage(msg))
		}
	}
	return messages, nil
}

// AckJob 确认 Job 消息已处理
func (s *Store) AckJob(ctx context.Context, messageID string) error {
	return s.client.XAck(ctx, s.stream, s.group, messageID).Err()
}

// ReclaimJobs 认领空闲超时的 pending 消息（XAUTOCLAIM）
func (s *Store) ReclaimJobs(ctx context.Context, consumerID string, minIdle time.Duration, count int64) ([]*queue.JobMessage, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: consumerID,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	messages := make([]*queue.JobMessage, 0, len(msgs))
	for _, msg := range msgs {
		messages = append(messages, parseJobMessage(msg))
	}
	return messages, nil
}

// TrimAcked 按消费者组的确认进度裁剪 Stream（XTRIM MINID）
//
// 下界取最早的未确认消息；没有未确认消息时取组内最后投递的 ID。
// 未投递的消息 ID 都大于 last-delivered-id，不会被删除。
func (s *Store) TrimAcked(ctx context.Context) (int64, error) {
	groups, err := s.client.XInfoGroups(ctx, s.stream).Result()
	if err != nil {
		return 0, err
	}
	var group *redis.XInfoGroup
	for i := range groups {
		if groups[i].Name == s.group {
			group = &groups[i]
			break
		}
	}
	if group == nil {
		return 0, nil
	}

	minID := group.LastDeliveredID
	if group.Pending > 0 {
		pending, err := s.client.XPending(ctx, s.stream, s.group).Result()
		if err != nil {
			return 0, err
		}
		minID = pending.Lower
	}
	if minID == "" || minID == "0-0" {
		return 0, nil
	}
	return s.client.XTrimMinID(ctx, s.stream, minID).Result()
}

// QueueLength 获取队列长度
func (s *Store) QueueLength(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, s.stream).Result()
}

// PendingCount 获取未确认消息数量
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	pending, err := s.client.XPending(ctx, s.stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return pending.Count, nil
}

func parseJobMessage(msg redis.XMessage) *queue.JobMessage {
	m := &queue.JobMessage{ID: msg.ID}
	if v, ok := msg.Values["job_id"].(string); ok {
		m.JobID = v
	}
	if v, ok := msg.Values["artifact_id"].(string); ok {
		m.ArtifactID = v
	}
	if v, ok := msg.Values["idx"].(string); ok {
		m.Index, _ = strconv.Atoi(v)
	}
	if v, ok := msg.Values["text"].(string); ok {
		m.Text = v
	}
	if v, ok := msg.Values["language"].(string); ok {
		m.Language = v
	}
	if v, ok := msg.Values["source_language"].(string); ok {
		m.SourceLanguage = v
	}
	if v, ok := msg.Values["kind"].(string); ok {
		m.Kind = model.Kind(v)
	}
	if v, ok := msg.Values["document_name"].(string); ok {
		m.DocumentName = v
	}
	if v, ok := msg.Values["estimated_tokens"].(string); ok {
		m.EstimatedTokens, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := msg.Values["enqueued_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.EnqueuedAt = t
		}
	}
	return m
}
