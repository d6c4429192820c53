// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"summary-engine/internal/ratelimit"
	"summary-engine/internal/shared/queue"
	queueredis "summary-engine/internal/shared/queue/redis"
)

// RedisInfra Redis 基础设施
//
// 同一个连接承载两类共享状态：Job 队列（Stream）与限流窗口计数器。
type RedisInfra struct {
	queueStore  *queueredis.Store
	windowStore *ratelimit.RedisWindowStore

	// 底层连接
	client *redis.Client
}

// NewRedisInfra 从 URL 创建 Redis 基础设施
func NewRedisInfra(redisURL string, opts ...queueredis.Option) (*RedisInfra, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(options)
	if err := ping(client); err != nil {
		client.Close()
		return nil, err
	}

	log.Printf("[Redis/Infra] Connected to %s", options.Addr)
	return newRedisInfra(client, opts...), nil
}

// NewRedisInfraFromAddr 从地址创建 Redis 基础设施
func NewRedisInfraFromAddr(addr, password string, db int, opts ...queueredis.Option) (*RedisInfra, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := ping(client); err != nil {
		client.Close()
		return nil, err
	}

	log.Printf("[Redis/Infra] Connected to %s", addr)
	return newRedisInfra(client, opts...), nil
}

func newRedisInfra(client *redis.Client, opts ...queueredis.Option) *RedisInfra {
	return &RedisInfra{
		client:      client,
		queueStore:  queueredis.NewStoreFromClient(client, opts...),
		windowStore: ratelimit.NewRedisWindowStore(client),
	}
}

func ping(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Queue 返回 Job 队列
func (r *RedisInfra) Queue() queue.JobQueue {
	return r.queueStore
}

// QueueStore 返回具体的 Stream 存储（运维命令读取 Stream 名）
func (r *RedisInfra) QueueStore() *queueredis.Store {
	return r.queueStore
}

// Windows 返回限流窗口存储
func (r *RedisInfra) Windows() ratelimit.WindowStore {
	return r.windowStore
}

// Client 返回底层 Redis 客户端
func (r *RedisInfra) Client() *redis.Client {
	return r.client
}

// Close 关闭 Redis 连接
func (r *RedisInfra) Close() error {
	return r.client.Close()
}
