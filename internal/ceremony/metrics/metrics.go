package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ceremonies. A nil *Metrics records nothing.
type Metrics struct {
	Started          *prometheus.CounterVec
	Outcomes         *prometheus.CounterVec
	FinishDuration   *prometheus.HistogramVec
	ChallengesReaped prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Started: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ceremonies_started_total",
			Help: "Ceremonies started by purpose",
		}, []string{"purpose"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_ceremony_outcomes_total",
			Help: "Ceremony finish outcomes by purpose and error reason",
		}, []string{"purpose", "outcome"}),
		FinishDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_ceremony_finish_duration_seconds",
			Help:    "Duration of ceremony finish operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"purpose"}),
		ChallengesReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_challenges_reaped_total",
			Help: "Expired challenges deleted by the reaper",
		}),
	}
}

func (m *Metrics) IncStarted(purpose string) {
	if m == nil {
		return
	}
	m.Started.WithLabelValues(purpose).Inc()
}

func (m *Metrics) ObserveFinish(purpose, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(purpose, outcome).Inc()
	m.FinishDuration.WithLabelValues(purpose).Observe(seconds)
}

func (m *Metrics) AddReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChallengesReaped.Add(float64(n))
}
