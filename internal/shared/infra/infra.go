// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：记录存储（PostgreSQL / SQLite）
//   - Documents：文档来源（记录存储或 MinIO）
//   - Queue：Job 队列（Redis Streams）
//   - Windows：限流窗口计数器（Redis）
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"summary-engine/internal/config"
	"summary-engine/internal/ratelimit"
	"summary-engine/internal/shared/queue"
	"summary-engine/internal/shared/storage"
	"summary-engine/internal/shared/storage/dbutil"
	"summary-engine/internal/shared/storage/objstore"
	"summary-engine/internal/shared/storage/repository"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 记录存储（Artifact/Job/Balance，以及 database 来源的 Document）
	Storage storage.PersistentStore

	// Documents 文档来源
	Documents storage.DocumentStore

	// Queue Job 队列
	Queue queue.JobQueue

	// Windows 限流窗口存储
	Windows ratelimit.WindowStore

	// Redis 底层连接（为空表示使用进程内实现）
	Redis *RedisInfra
}

// Open 按配置初始化全部基础设施
func Open(cfg *config.Config) (*Infrastructure, error) {
	driver, err := dbutil.ParseDriverType(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	store, err := repository.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	log.Printf("[Infra] %s store ready", driver)

	inf := &Infrastructure{Storage: store, Documents: store}

	if cfg.Documents.Source == "minio" {
		client, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			inf.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = client.EnsureBucket(ctx)
		cancel()
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("ensure bucket %s: %w", client.Bucket(), err)
		}
		inf.Documents = objstore.NewDocumentStore(client, cfg.Documents.Prefix)
		log.Printf("[Infra] documents from minio bucket=%s prefix=%s", client.Bucket(), cfg.Documents.Prefix)
	}

	r, err := NewRedisInfra(cfg.RedisURL)
	if err != nil {
		inf.Close()
		return nil, err
	}
	inf.Redis = r
	inf.Queue = r.Queue()
	inf.Windows = r.Windows()
	return inf, nil
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			lastErr = err
		}
	}

	// 队列与限流窗口共用 Redis 连接，只关闭一次
	switch {
	case i.Redis != nil:
		if err := i.Redis.Close(); err != nil {
			lastErr = err
		}
	case i.Queue != nil:
		if err := i.Queue.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewMemoryInfrastructure 创建进程内基础设施（测试与单机开发）
func NewMemoryInfrastructure() (*Infrastructure, error) {
	store, err := repository.Open(dbutil.DriverSQLite, ":memory:")
	if err != nil {
		return nil, err
	}
	return &Infrastructure{
		Storage:   store,
		Documents: store,
		Queue:     queue.NewMemoryQueue(),
		Windows:   ratelimit.NewMemoryWindowStore(),
	}, nil
}
