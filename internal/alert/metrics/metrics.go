package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for security alerts. A nil *Metrics records nothing.
type Metrics struct {
	Raised         *prometheus.CounterVec
	Resolved       prometheus.Counter
	NotifyFailures prometheus.Counter
	NotifyDropped  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Raised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_alerts_raised_total",
			Help: "Security alerts raised by type",
		}, []string{"alert_type"}),
		Resolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_alerts_resolved_total",
			Help: "Security alerts transitioned to resolved",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_alert_notify_failures_total",
			Help: "Alert notifications that failed to deliver",
		}),
		NotifyDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_alert_notify_dropped_total",
			Help: "Alert notifications dropped because the queue was full or closed",
		}),
	}
}

func (m *Metrics) IncRaised(alertType string) {
	if m == nil {
		return
	}
	m.Raised.WithLabelValues(alertType).Inc()
}

func (m *Metrics) IncResolved() {
	if m == nil {
		return
	}
	m.Resolved.Inc()
}

func (m *Metrics) IncNotifyFailure() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

func (m *Metrics) IncNotifyDropped() {
	if m == nil {
		return
	}
	m.NotifyDropped.Inc()
}
