// Package redis 基于 Redis Streams 的 Job 队列实现
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"summary-engine/internal/shared/queue"
)

// Store Redis Streams 队列
type Store struct {
	client *redis.Client
	stream string
	group  string
}

// Option Store 可选项
type Option func(*Store)

// WithStream 指定 Stream 与消费者组名（测试隔离用）
func WithStream(stream, group string) Option {
	return func(s *Store) {
		s.stream = stream
		s.group = group
	}
}

// NewStore 创建 Redis 队列实例
func NewStore(addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Queue] Connected to %s", addr)
	return NewStoreFromClient(client, opts...), nil
}

// NewStoreFromClient 复用已有客户端
func NewStoreFromClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		stream: queue.KeyJobStream,
		group:  queue.JobConsumerGroup,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream 返回 Stream key
func (s *Store) Stream() string {
	return s.stream
}

// Client 返回底层客户端
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

var _ queue.JobQueue = (*Store)(nil)
