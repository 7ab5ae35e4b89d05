package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for impersonation. A nil *Metrics records nothing.
type Metrics struct {
	Started  prometheus.Counter
	Stopped  *prometheus.CounterVec
	Denied   *prometheus.CounterVec
	Duration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Started: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_impersonations_started_total",
			Help: "Impersonations started",
		}),
		Stopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_impersonations_stopped_total",
			Help: "Impersonations stopped by restore path (context, token)",
		}, []string{"path"}),
		Denied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_impersonations_denied_total",
			Help: "Impersonation attempts refused by reason",
		}, []string{"reason"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_impersonation_duration_seconds",
			Help:    "Time between start and stop of an impersonation",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600},
		}),
	}
}

func (m *Metrics) IncStarted() {
	if m == nil {
		return
	}
	m.Started.Inc()
}

func (m *Metrics) ObserveStopped(path string, seconds float64) {
	if m == nil {
		return
	}
	m.Stopped.WithLabelValues(path).Inc()
	if seconds > 0 {
		m.Duration.Observe(seconds)
	}
}

func (m *Metrics) IncDenied(reason string) {
	if m == nil {
		return
	}
	m.Denied.WithLabelValues(reason).Inc()
}
