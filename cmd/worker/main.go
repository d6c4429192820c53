// Package main Worker 入口
//
// 从 Job 队列消费消息：限流 → 生成 → 修复 → 写回 → 汇总终结。
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"summary-engine/internal/aggregator"
	"summary-engine/internal/config"
	"summary-engine/internal/generation"
	"summary-engine/internal/prompt"
	"summary-engine/internal/ratelimit"
	"summary-engine/internal/shared/infra"
	"summary-engine/internal/worker"
	"summary-engine/pkg/logging"
)

func main() {
	cfg := config.Load()

	cfg.Logging.Component = "worker"
	logger := logging.New(cfg.Logging)

	log.Printf("Starting Worker %s... [env=%s]", cfg.Worker.ConsumerID, cfg.Env)
	log.Printf("Config: %s", cfg.String())

	inf, err := infra.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()

	provider, err := newProvider(cfg.Model, logger)
	if err != nil {
		log.Fatalf("Failed to create provider: %v", err)
	}
	log.Printf("Provider: %s model=%s", provider.Name(), cfg.Model.Name)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := worker.NewMetrics("summary_worker", cfg.Worker.ConsumerID, reg)

	limiter := ratelimit.New(inf.Windows, cfg.Model.Name, cfg.RateLimit, logger)
	agg := aggregator.New(inf.Storage, inf.Storage, inf.Storage, logger)
	w := worker.New(inf.Storage, limiter, provider, agg, worker.Options{
		Model:       cfg.Model.Name,
		MaxTokens:   cfg.Model.ReplyTokens,
		Temperature: cfg.Model.Temperature,
		Pricing: generation.Pricing{
			InputPer1K:  cfg.Model.InputPricePer1K,
			OutputPer1K: cfg.Model.OutputPricePer1K,
		},
	}, metrics, logger)
	consumer := worker.NewConsumer(inf.Queue, w, cfg.Worker, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Reconcile.Enabled {
		r := worker.NewReconciler(inf.Storage, inf.Storage, inf.Queue, cfg.Reconcile, metrics, logger)
		go r.Run(ctx)
		log.Printf("Reconciler enabled [requeue=%v interval=%s]", cfg.Reconcile.Requeue, cfg.Reconcile.Interval)
	}

	// 指标端点
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	metricsSrv := &http.Server{Addr: ":" + cfg.Worker.MetricsPort, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down Worker...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil {
		log.Printf("Consumer stopped: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	fmt.Println("Worker stopped")
}

// newProvider 按配置创建生成模型 Provider
func newProvider(cfg config.ModelConfig, logger *logging.Logger) (generation.Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return generation.NewOpenAIProvider(cfg, logger)
	case "mock":
		return generation.NewScriptedProvider(prompt.StubResponder), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
