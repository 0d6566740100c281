package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CarrierMetrics records latency and outcomes for outbound carrier calls.
type CarrierMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCarrierMetrics registers the carrier call metrics on the provided registerer.
func NewCarrierMetrics(reg prometheus.Registerer) *CarrierMetrics {
	if reg == nil {
		return &CarrierMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrier_call_duration_seconds",
		Help:    "Duration of carrier API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"carrier", "operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_call_success",
		Help: "Successful carrier API calls.",
	}, []string{"carrier", "operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_call_failure",
		Help: "Failed carrier API calls.",
	}, []string{"carrier", "operation"})
	reg.MustRegister(duration, success, failure)
	return &CarrierMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration for a carrier operation.
func (c *CarrierMetrics) ObserveDuration(carrier, operation string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(carrier), normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for a carrier operation.
func (c *CarrierMetrics) IncSuccess(carrier, operation string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(carrier), normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for a carrier operation.
func (c *CarrierMetrics) IncFailure(carrier, operation string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(carrier), normalizeLabel(operation)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
