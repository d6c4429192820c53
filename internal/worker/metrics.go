package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"summary-engine/internal/shared/model"
)

// Metrics Worker 指标
type Metrics struct {
	// Job 处理
	JobsProcessed *prometheus.CounterVec
	JobsSkipped   *prometheus.CounterVec
	JobsInFlight  prometheus.Gauge
	TokensUsed    prometheus.Counter
	CostTotal     prometheus.Counter

	// 模型调用
	GenerationLatency *prometheus.HistogramVec

	// 限流
	RateLimitWait prometheus.Histogram

	// 队列
	MessagesAcked     prometheus.Counter
	MessagesReclaimed prometheus.Counter

	// 巡检
	OrphansDetected prometheus.Counter
	OrphansRequeued prometheus.Counter
}

// NewMetrics 创建 Worker 指标，consumerID 作为常量标签
func NewMetrics(namespace, consumerID string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"consumer_id": consumerID}
	f := promauto.With(reg)

	return &Metrics{
		JobsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "jobs_processed_total",
				Help:        "Jobs brought to a terminal state, by status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		JobsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "jobs_skipped_total",
				Help:        "Messages skipped without processing, by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		JobsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "jobs_in_flight",
				Help:        "Messages currently being processed",
				ConstLabels: labels,
			},
		),
		TokensUsed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "tokens_consumed_total",
				Help:        "Provider-reported tokens consumed by finished jobs",
				ConstLabels: labels,
			},
		),
		CostTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "cost_usd_total",
				Help:        "Estimated provider cost of finished jobs in USD",
				ConstLabels: labels,
			},
		),
		GenerationLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "generation_latency_seconds",
				Help:        "Provider call latency in seconds",
				Buckets:     []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		RateLimitWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "ratelimit_wait_seconds",
				Help:        "Time spent waiting for the shared token budget",
				Buckets:     []float64{0, 1, 5, 30, 60, 120, 300, 600, 1800},
				ConstLabels: labels,
			},
		),
		MessagesAcked: f.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "messages_acked_total",
				Help:        "Queue messages acknowledged",
				ConstLabels: labels,
			},
		),
		MessagesReclaimed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "messages_reclaimed_total",
				Help:        "Idle pending messages reclaimed from other consumers",
				ConstLabels: labels,
			},
		),
		OrphansDetected: f.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "orphaned_jobs_detected_total",
				Help:        "PENDING jobs found without a live queue message",
				ConstLabels: labels,
			},
		),
		OrphansRequeued: f.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "orphaned_jobs_requeued_total",
				Help:        "Orphaned jobs re-enqueued by the reconciler",
				ConstLabels: labels,
			},
		),
	}
}

func (m *Metrics) observeJob(o model.JobOutcome) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(string(o.Status)).Inc()
	m.TokensUsed.Add(float64(o.TokensUsed))
	m.CostTotal.Add(o.Cost)
}

func (m *Metrics) skipped(reason string) {
	if m == nil {
		return
	}
	m.JobsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeGeneration(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GenerationLatency.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) observeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.JobsInFlight.Add(delta)
}

func (m *Metrics) acked() {
	if m == nil {
		return
	}
	m.MessagesAcked.Inc()
}

func (m *Metrics) reclaimed(n int) {
	if m == nil {
		return
	}
	m.MessagesReclaimed.Add(float64(n))
}

func (m *Metrics) orphans(detected, requeued int) {
	if m == nil {
		return
	}
	m.OrphansDetected.Add(float64(detected))
	m.OrphansRequeued.Add(float64(requeued))
}
