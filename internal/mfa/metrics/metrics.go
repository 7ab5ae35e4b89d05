package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for second-factor checks. A nil
// *Metrics records nothing.
type Metrics struct {
	Verifications *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_mfa_verifications_total",
			Help: "Second-factor checks by method (totp, recovery) and result",
		}, []string{"method", "result"}),
	}
}

func (m *Metrics) IncVerification(method, result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(method, result).Inc()
}
