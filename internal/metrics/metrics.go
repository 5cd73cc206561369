// Package metrics exposes Prometheus metrics for receipt verification.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "receipt_api"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	AppleRequests        *prometheus.CounterVec
	AppleRequestDuration *prometheus.HistogramVec
	Verifications        *prometheus.CounterVec
	HistoryWriteFailures *prometheus.CounterVec
	Expirations          *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Metrics, error) {
	m := &Metrics{
		AppleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apple_requests_total",
			Help:      "verifyReceipt calls by environment and outcome.",
		}, []string{"environment", "outcome"}),
		AppleRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apple_request_duration_seconds",
			Help:      "verifyReceipt call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"environment"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Receipt verification requests by result code.",
		}, []string{"code"}),
		HistoryWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_failures_total",
			Help:      "Subscription history entries that could not be written.",
		}, []string{"event_type"}),
		Expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expirations_total",
			Help:      "Manual expire calls by result.",
		}, []string{"result"}),
		gatherer: gatherer,
	}

	for _, c := range []prometheus.Collector{
		m.AppleRequests,
		m.AppleRequestDuration,
		m.Verifications,
		m.HistoryWriteFailures,
		m.Expirations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveAppleRequest records one verifyReceipt call.
func (m *Metrics) ObserveAppleRequest(environment, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AppleRequests.WithLabelValues(environment, outcome).Inc()
	m.AppleRequestDuration.WithLabelValues(environment).Observe(d.Seconds())
}

// RecordVerification records the outcome of a verify request ("ok" or an error code).
func (m *Metrics) RecordVerification(code string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(code).Inc()
}

// RecordHistoryFailure records a swallowed history write failure.
func (m *Metrics) RecordHistoryFailure(eventType string) {
	if m == nil {
		return
	}
	m.HistoryWriteFailures.WithLabelValues(eventType).Inc()
}

// RecordExpiration records a manual expire call.
func (m *Metrics) RecordExpiration(expired bool) {
	if m == nil {
		return
	}
	result := "noop"
	if expired {
		result = "expired"
	}
	m.Expirations.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
