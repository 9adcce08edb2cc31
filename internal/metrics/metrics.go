// Package metrics exposes Prometheus instruments for sweeps and scanners.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FeedBot/internal/domain"
)

const namespace = "feedbot"

// Source outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// Metrics holds all instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SweepsTotal     *prometheus.CounterVec
	SweepDuration   *prometheus.HistogramVec
	SweepsSkipped   prometheus.Counter
	SourceScans     *prometheus.CounterVec
	ArticlesEmitted *prometheus.CounterVec
	PersistFailures prometheus.Counter
	NotifyFailures  prometheus.Counter
}

// New creates and registers the instruments on reg (default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SweepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweeps run, by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a sweep",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"trigger"}),
		SweepsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_skipped_total",
			Help:      "Scheduled sweeps skipped because another sweep was running",
		}),
		SourceScans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_scans_total",
			Help:      "Source scans, by kind and outcome",
		}, []string{"kind", "outcome"}),
		ArticlesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_emitted_total",
			Help:      "New articles handed to notifiers, by kind",
		}, []string{"kind"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Seen-state persist failures",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Digest deliveries that failed",
		}),
	}
}

// ObserveSweep records a finished sweep.
func (m *Metrics) ObserveSweep(trigger domain.Trigger, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	m.SweepsTotal.WithLabelValues(string(trigger), outcome).Inc()
	m.SweepDuration.WithLabelValues(string(trigger)).Observe(elapsed.Seconds())
}

// ObserveSource records one scanned target.
func (m *Metrics) ObserveSource(kind domain.SourceKind, outcome string, articles int) {
	if m == nil {
		return
	}
	m.SourceScans.WithLabelValues(string(kind), outcome).Inc()
	if articles > 0 {
		m.ArticlesEmitted.WithLabelValues(string(kind)).Add(float64(articles))
	}
}

// SweepSkipped counts a scheduled sweep dropped while another was running.
func (m *Metrics) SweepSkipped() {
	if m == nil {
		return
	}
	m.SweepsSkipped.Inc()
}

// PersistFailed counts a failed seen-state persist.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// NotifyFailed counts a failed digest delivery.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}
