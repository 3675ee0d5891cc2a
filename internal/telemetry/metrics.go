package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters exposed on /metrics.
type Metrics struct {
	AuthOps       *prometheus.CounterVec
	SessionsSwept prometheus.Counter
}

// NewMetrics registers the auth counters on the given registerer. Pass
// prometheus.DefaultRegisterer in the server and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_swept_total",
			Help: "Sessions removed by the background sweep.",
		}),
	}
}

// ObserveOp increments the operation counter. outcome is "ok" or "error".
func (m *Metrics) ObserveOp(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AuthOps.WithLabelValues(operation, outcome).Inc()
}
