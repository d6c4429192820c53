package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"summary-engine/internal/shared/model"
)

// Metrics 派发指标
type Metrics struct {
	ArtifactsDispatched *prometheus.CounterVec
	JobsCreated         prometheus.Counter
	JobsOrphaned        prometheus.Counter
	BucketsPerArtifact  prometheus.Histogram
}

// NewMetrics 创建派发指标并注册到 reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ArtifactsDispatched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_dispatched_total",
				Help:      "Artifacts accepted and dispatched, by kind",
			},
			[]string{"kind"},
		),
		JobsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_created_total",
				Help:      "Jobs persisted by the dispatcher",
			},
		),
		JobsOrphaned: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_orphaned_total",
				Help:      "Jobs persisted whose queue message could not be enqueued",
			},
		),
		BucketsPerArtifact: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "buckets_per_artifact",
				Help:      "Number of buckets produced per artifact",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
		),
	}
}

func (m *Metrics) observeDispatch(kind model.Kind, res *Result) {
	if m == nil {
		return
	}
	m.ArtifactsDispatched.WithLabelValues(string(kind)).Inc()
	m.JobsCreated.Add(float64(res.Jobs))
	m.JobsOrphaned.Add(float64(res.Orphaned))
	m.BucketsPerArtifact.Observe(float64(res.Jobs))
}
