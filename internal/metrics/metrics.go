// Package metrics holds the Prometheus collectors for the identity service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels for AuthOperations.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// AuthOperations counts facade operations by outcome.
// Use Register to expose it on /metrics.
var AuthOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_auth_operations_total",
		Help: "Total number of auth operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// RateLimited counts requests rejected by the token bucket.
var RateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "identity_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	},
	[]string{"route"},
)

// Record increments AuthOperations for one call.
func Record(operation, outcome string) {
	AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// NewRegistry returns a registry with the Go and process collectors plus
// the service metrics. A private registry keeps the global one clean.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Register(reg)
	return reg
}

// Register registers the service metrics with reg.
// Panics if registration fails (following prometheus convention).
func Register(reg prometheus.Registerer) {
	reg.MustRegister(AuthOperations)
	reg.MustRegister(RateLimited)
}
