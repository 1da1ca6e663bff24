package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain-level Prometheus collectors. HTTP request
// instrumentation lives in the transport middleware.
type Metrics struct {
	LoginsTotal      *prometheus.CounterVec
	ResetEventsTotal *prometheus.CounterVec
}

// NewMetrics registers all collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olsnet",
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		ResetEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olsnet",
			Name:      "password_reset_events_total",
			Help:      "Password reset state transitions",
		}, []string{"stage", "outcome"}),
	}
}
