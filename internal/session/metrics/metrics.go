package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for session tracking and anomaly scans.
// A nil *Metrics records nothing.
type Metrics struct {
	Tracked       *prometheus.CounterVec
	Terminated    prometheus.Counter
	Anomalies     *prometheus.CounterVec
	SweepSubjects prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Tracked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_sessions_tracked_total",
			Help: "Session track calls by result (created, refreshed)",
		}, []string{"result"}),
		Terminated: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_sessions_terminated_total",
			Help: "Sessions deactivated",
		}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_session_anomalies_total",
			Help: "Anomalies escalated to alerts by type",
		}, []string{"alert_type"}),
		SweepSubjects: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_anomaly_sweep_subjects_total",
			Help: "Subjects scanned by the anomaly sweep",
		}),
	}
}

func (m *Metrics) IncTracked(created bool) {
	if m == nil {
		return
	}
	result := "refreshed"
	if created {
		result = "created"
	}
	m.Tracked.WithLabelValues(result).Inc()
}

func (m *Metrics) AddTerminated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Terminated.Add(float64(n))
}

func (m *Metrics) IncAnomaly(alertType string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(alertType).Inc()
}

func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepSubjects.Add(float64(n))
}
