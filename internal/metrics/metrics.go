// Package metrics exposes the counters the reliability layer increments.
// All methods are nil-receiver safe so callers that do not care about
// metrics can pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for backend calls, repairs, and
// routing decisions.
type Metrics struct {
	backendCalls       *prometheus.CounterVec
	repairCalls        *prometheus.CounterVec
	fallbackSelections prometheus.Counter
	breakerTrips       prometheus.Counter
	callDuration       *prometheus.HistogramVec
}

// New registers the collectors on reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_backend_calls_total",
			Help: "Backend generation calls by backend route and outcome.",
		}, []string{"backend", "outcome"}),
		repairCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_repair_calls_total",
			Help: "Repair calls by trigger (parse, schema, or quality).",
		}, []string{"trigger"}),
		fallbackSelections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_fallback_selections_total",
			Help: "Requests routed to the fallback backend.",
		}),
		breakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_breaker_trips_total",
			Help: "Circuit breaker transitions into the disabled state.",
		}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forge_call_duration_seconds",
			Help:    "Wall time of backend generation calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"backend"}),
	}
	reg.MustRegister(m.backendCalls, m.repairCalls, m.fallbackSelections, m.breakerTrips, m.callDuration)
	return m
}

// ObserveCall records one backend call and its duration.
func (m *Metrics) ObserveCall(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(backend, outcome).Inc()
	m.callDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RepairIssued records a repair call by trigger (parse, schema, or quality).
func (m *Metrics) RepairIssued(trigger string) {
	if m == nil {
		return
	}
	m.repairCalls.WithLabelValues(trigger).Inc()
}

// FallbackSelected records a routing decision away from the primary.
func (m *Metrics) FallbackSelected() {
	if m == nil {
		return
	}
	m.fallbackSelections.Inc()
}

// BreakerTripped records a circuit breaker trip.
func (m *Metrics) BreakerTripped() {
	if m == nil {
		return
	}
	m.breakerTrips.Inc()
}
