// Package main API Server 入口
//
// 接收生成请求并派发 Job；可选地运行孤儿 Job 巡检。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"summary-engine/internal/apiserver/server"
	"summary-engine/internal/config"
	"summary-engine/internal/dispatcher"
	"summary-engine/internal/langdetect"
	"summary-engine/internal/segmenter"
	"summary-engine/internal/shared/infra"
	"summary-engine/internal/worker"
	"summary-engine/pkg/logging"
)

func main() {
	cfg := config.Load()

	cfg.Logging.Component = "api-server"
	logger := logging.New(cfg.Logging)

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())
	if cfg.Server.InternalSecret == "" {
		log.Fatal("INTERNAL_SECRET is required")
	}

	inf, err := infra.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()

	seg, err := segmenter.NewFromConfig(cfg.Model)
	if err != nil {
		log.Fatalf("Failed to create segmenter: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := dispatcher.Deps{
		Artifacts: inf.Storage,
		Jobs:      inf.Storage,
		Documents: inf.Documents,
		Balances:  inf.Storage,
		Queue:     inf.Queue,
		Segmenter: seg,
		Metrics:   dispatcher.NewMetrics("summary_dispatch", reg),
		Logger:    logger,
	}
	if cfg.Model.DetectLanguage {
		deps.Detector = langdetect.New()
	}
	disp := dispatcher.New(deps, dispatcher.Options{
		ReplyTokens:        cfg.Model.ReplyTokens,
		CreditsPer1KTokens: cfg.Billing.CreditsPer1KTokens,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Reconcile.Enabled {
		metrics := worker.NewMetrics("summary_reconcile", "api-server", reg)
		r := worker.NewReconciler(inf.Storage, inf.Storage, inf.Queue, cfg.Reconcile, metrics, logger)
		go r.Run(ctx)
		log.Printf("Reconciler enabled [requeue=%v interval=%s]", cfg.Reconcile.Requeue, cfg.Reconcile.Interval)
	}

	h := server.NewHandler(disp, inf.Storage, server.Options{
		InternalSecret: cfg.Server.InternalSecret,
		Registry:       reg,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
