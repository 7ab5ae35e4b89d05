package request

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds per-route HTTP instrumentation.
type Metrics struct {
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP handler latency by route, method and status class",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method", "status"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_http_requests_in_flight",
			Help: "Requests currently being served",
		}),
	}
}

// Latency records handler duration keyed by the route pattern route returns,
// so path parameters do not explode label cardinality.
func Latency(m *Metrics, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.InFlight.Inc()
			defer m.InFlight.Dec()

			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)
			m.Duration.
				WithLabelValues(route(r), r.Method, statusClass(rec.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
