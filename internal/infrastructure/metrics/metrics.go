// Package metrics exposes Prometheus collectors for the sync queue, the
// failure policy and the Smart Today ranker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/study-pace/internal/domain/shared"
)

const namespace = "study_pace"

// Metrics holds all custom Prometheus metrics of the engine.
type Metrics struct {
	// Sync queue
	QueueDepth    prometheus.Gauge
	QueueEnqueued prometheus.Counter
	QueueDrained  prometheus.Counter
	QueueFailed   prometheus.Counter
	QueueDropped  prometheus.Counter

	// Failure policy
	Failures *prometheus.CounterVec

	// Smart Today
	RankingDuration    prometheus.Histogram
	RankingSuggestions prometheus.Histogram
	RankingFailures    prometheus.Counter

	// Scheduler
	JobFailures *prometheus.CounterVec
}

// New registers the collectors in reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Number of writes waiting in the sync queue",
		}),
		QueueEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_queue_enqueued_total",
			Help:      "Total number of writes queued after a network failure",
		}),
		QueueDrained: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_queue_drained_total",
			Help:      "Total number of queued writes replayed successfully",
		}),
		QueueFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_queue_failed_total",
			Help:      "Total number of failed replay attempts",
		}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_queue_dropped_total",
			Help:      "Total number of writes dropped after exhausting retries",
		}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of handled failures by category",
		}, []string{"category"}),

		RankingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "smart_today_duration_seconds",
			Help:      "Smart Today ranking latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		RankingSuggestions: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "smart_today_suggestions",
			Help:      "Number of suggestions returned per ranking",
			Buckets:   prometheus.LinearBuckets(0, 2, 8),
		}),
		RankingFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smart_today_failures_total",
			Help:      "Total number of rankings that fell back to an empty list",
		}),

		JobFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Total number of failed scheduled job runs",
		}, []string{"job"}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// syncqueue.Observer
// ══════════════════════════════════════════════════════════════════════════════

// Enqueued records a queued write.
func (m *Metrics) Enqueued() { m.QueueEnqueued.Inc() }

// Drained records replayed writes.
func (m *Metrics) Drained(n int) { m.QueueDrained.Add(float64(n)) }

// Failed records failed replay attempts.
func (m *Metrics) Failed(n int) { m.QueueFailed.Add(float64(n)) }

// Dropped records dropped writes.
func (m *Metrics) Dropped(n int) { m.QueueDropped.Add(float64(n)) }

// Depth sets the current queue length.
func (m *Metrics) Depth(n int) { m.QueueDepth.Set(float64(n)) }

// ══════════════════════════════════════════════════════════════════════════════
// resilience.FailureRecorder
// ══════════════════════════════════════════════════════════════════════════════

// Failure counts a classified failure.
func (m *Metrics) Failure(category shared.Category) {
	m.Failures.WithLabelValues(string(category)).Inc()
}

// ══════════════════════════════════════════════════════════════════════════════
// query.RankingObserver
// ══════════════════════════════════════════════════════════════════════════════

// ObserveRanking records one successful ranking.
func (m *Metrics) ObserveRanking(d time.Duration, suggestions int) {
	m.RankingDuration.Observe(d.Seconds())
	m.RankingSuggestions.Observe(float64(suggestions))
}

// RankingFailed counts a ranking that returned the empty fallback.
func (m *Metrics) RankingFailed() { m.RankingFailures.Inc() }

// JobFailed counts a failed scheduled job run.
func (m *Metrics) JobFailed(job string) { m.JobFailures.WithLabelValues(job).Inc() }
