package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the rate limiter. A nil *Metrics
// records nothing.
type Metrics struct {
	Checks                *prometheus.CounterVec
	Errors                prometheus.Counter
	CleanupDeleted        prometheus.Counter
	CleanupRunsTotal      *prometheus.CounterVec
	CleanupDurationSecond prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_checks_total",
			Help: "Rate limit checks by route class and decision",
		}, []string{"class", "decision"}),
		Errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_ratelimit_store_errors_total",
			Help: "Counter store failures during checks",
		}),
		CleanupDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_ratelimit_cleanup_deleted_total",
			Help: "Expired counters removed by the cleanup worker",
		}),
		CleanupRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDurationSecond: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "warden_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
	}
}

func (m *Metrics) IncCheck(class string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.Checks.WithLabelValues(class, decision).Inc()
}

func (m *Metrics) IncError() {
	if m == nil {
		return
	}
	m.Errors.Inc()
}

func (m *Metrics) ObserveCleanup(status string, deleted int, seconds float64) {
	if m == nil {
		return
	}
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
	m.CleanupDurationSecond.Observe(seconds)
	if deleted > 0 {
		m.CleanupDeleted.Add(float64(deleted))
	}
}
