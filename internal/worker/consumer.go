package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"summary-engine/internal/config"
	"summary-engine/internal/shared/queue"
	"summary-engine/pkg/logging"
)

// consumeErrorBackoff 读取队列失败后的等待时间
const consumeErrorBackoff = time.Second

// Processor 处理单条消息
type Processor interface {
	Process(ctx context.Context, msg *queue.JobMessage) error
}

// Consumer 队列消费循环
//
// 每次读取一批消息，每条消息一个 goroutine（MaxConcurrency > 0 时限制并发），
// 整批处理完再读下一批。处理成功才 Ack；失败的消息留在 pending 中，
// 空闲超过 ReclaimIdle 后由任意消费者通过 ReclaimJobs 重新认领。
type Consumer struct {
	queue     queue.JobConsumer
	processor Processor
	cfg       config.WorkerConfig
	metrics   *Metrics
	log       *logging.Logger
}

// NewConsumer 创建消费者
func NewConsumer(q queue.JobConsumer, p Processor, cfg config.WorkerConfig, metrics *Metrics, log *logging.Logger) *Consumer {
	if log == nil {
		log = logging.Discard()
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ConsumerID == "" {
		cfg.ConsumerID = "worker"
	}
	return &Consumer{
		queue:     q,
		processor: p,
		cfg:       cfg,
		metrics:   metrics,
		log:       log.Named("consumer"),
	}
}

// Run 阻塞运行直到 ctx 取消
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	c.log.Info("consumer.started",
		"consumer_id", c.cfg.ConsumerID,
		"read_count", c.cfg.ReadCount,
		"max_concurrency", c.cfg.MaxConcurrency,
		"reclaim_idle", c.cfg.ReclaimIdle.String(),
	)

	var wg sync.WaitGroup
	if c.cfg.ReclaimIdle > 0 && c.cfg.ReclaimInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.reclaimLoop(ctx)
		}()
	}

	c.readLoop(ctx)
	wg.Wait()
	c.log.Info("consumer.stopped")
	return nil
}

func (c *Consumer) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := c.queue.ConsumeJobs(ctx, c.cfg.ConsumerID, int64(c.cfg.ReadCount), c.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			c.log.Error("consumer.read.failed", "error", err)
			if sleepContext(ctx, consumeErrorBackoff) != nil {
				return
			}
			continue
		}
		c.HandleBatch(ctx, msgs)
	}
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ReclaimOnce(ctx)
			c.TrimOnce(ctx)
		}
	}
}

// ReclaimOnce 认领一次空闲消息并处理
func (c *Consumer) ReclaimOnce(ctx context.Context) int {
	msgs, err := c.queue.ReclaimJobs(ctx, c.cfg.ConsumerID, c.cfg.ReclaimIdle, int64(c.cfg.ReadCount))
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("consumer.reclaim.failed", "error", err)
		}
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}
	c.log.Info("consumer.reclaimed", "messages", len(msgs))
	c.metrics.reclaimed(len(msgs))
	c.HandleBatch(ctx, msgs)
	return len(msgs)
}

// TrimOnce 回收已确认的消息（队列支持时）
func (c *Consumer) TrimOnce(ctx context.Context) int64 {
	t, ok := c.queue.(queue.JobTrimmer)
	if !ok {
		return 0
	}
	n, err := t.TrimAcked(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("consumer.trim.failed", "error", err)
		}
		return 0
	}
	if n > 0 {
		c.log.Debug("consumer.trimmed", "messages", n)
	}
	return n
}

// HandleBatch 并发处理一批消息并等待全部结束
func (c *Consumer) HandleBatch(ctx context.Context, msgs []*queue.JobMessage) {
	if len(msgs) == 0 {
		return
	}
	var sem chan struct{}
	if c.cfg.MaxConcurrency > 0 {
		sem = make(chan struct{}, c.cfg.MaxConcurrency)
	}

	var wg sync.WaitGroup
	for _, msg := range msgs {
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
		wg.Add(1)
		go func(msg *queue.JobMessage) {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			c.handle(ctx, msg)
		}(msg)
	}
	wg.Wait()
}

func (c *Consumer) handle(ctx context.Context, msg *queue.JobMessage) {
	c.metrics.inFlight(1)
	defer c.metrics.inFlight(-1)

	if err := c.processor.Process(ctx, msg); err != nil {
		// 不 Ack，等待重新认领
		c.log.Error("consumer.process.failed", "message_id", msg.ID, "job_id", msg.JobID, "error", err)
		return
	}
	if err := c.queue.AckJob(context.WithoutCancel(ctx), msg.ID); err != nil {
		c.log.Error("consumer.ack.failed", "message_id", msg.ID, "job_id", msg.JobID, "error", err)
		return
	}
	c.metrics.acked()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
