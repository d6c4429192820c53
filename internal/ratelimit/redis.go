package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript 读取、比较、累加、续期在一次脚本执行内完成
//
// KEYS[1] 窗口键；ARGV[1] 本次 tokens；ARGV[2] 上限；ARGV[3] TTL 毫秒
// 返回 {acquired(0/1), usage}
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local tokens = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])
if current + tokens > ceiling then
  return {0, current}
end
local usage = redis.call('INCRBY', KEYS[1], tokens)
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return {1, usage}
`)

// RedisWindowStore Redis 实现，所有 Worker 共享
type RedisWindowStore struct {
	client *redis.Client
}

// NewRedisWindowStore 复用已有客户端
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

// TryConsume 原子检查并累加
func (s *RedisWindowStore) TryConsume(ctx context.Context, key string, tokens, ceiling int64, ttl time.Duration) (bool, int64, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{key}, tokens, ceiling, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate window %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate window %s: unexpected script reply %v", key, res)
	}
	return res[0] == 1, res[1], nil
}

// Usage 当前用量
func (s *RedisWindowStore) Usage(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
