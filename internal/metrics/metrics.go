// Package metrics exposes Prometheus collectors for the relay core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors shared by the HTTP layer and the core.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	submissions  *prometheus.CounterVec
	rpcAttempts  *prometheus.CounterVec
	breakerOpen  *prometheus.GaugeVec
	trackedKeys  prometheus.Gauge
	lockWait     prometheus.Histogram
	confirmation prometheus.Histogram
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "txrelay"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"method", "path"})

	m.submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "submissions_total",
		Help:      "Total transaction submissions by terminal status.",
	}, []string{"status"})
	m.rpcAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "attempts_total",
		Help:      "Total RPC attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
	m.breakerOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "breaker_open",
		Help:      "Whether the circuit breaker for a provider/chain is open (1) or closed (0).",
	}, []string{"provider", "chain"})
	m.trackedKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sequencer",
		Name:      "tracked_keys",
		Help:      "Number of account keys currently tracked by the sequencer.",
	})
	m.lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sequencer",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting to enter an account critical section.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.confirmation = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "confirmation_seconds",
		Help:      "Time from broadcast until a terminal confirmation status.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	m.registry.MustRegister(
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.submissions, m.rpcAttempts, m.breakerOpen,
		m.trackedKeys, m.lockWait, m.confirmation,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight increments the in-flight HTTP request gauge.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight decrements the in-flight HTTP request gauge.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSubmission counts a submission reaching a terminal status.
func (m *Metrics) RecordSubmission(status string) {
	m.submissions.WithLabelValues(status).Inc()
}

// RecordRPCAttempt counts a single RPC attempt outcome.
func (m *Metrics) RecordRPCAttempt(provider, outcome string) {
	m.rpcAttempts.WithLabelValues(provider, outcome).Inc()
}

// SetBreakerOpen reflects breaker state for a provider/chain pair.
func (m *Metrics) SetBreakerOpen(provider, chain string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.breakerOpen.WithLabelValues(provider, chain).Set(v)
}

// SetTrackedKeys reflects the sequencer registry size.
func (m *Metrics) SetTrackedKeys(n int) { m.trackedKeys.Set(float64(n)) }

// ObserveLockWait records time spent waiting on an account lock.
func (m *Metrics) ObserveLockWait(d time.Duration) { m.lockWait.Observe(d.Seconds()) }

// ObserveConfirmation records broadcast-to-terminal latency.
func (m *Metrics) ObserveConfirmation(d time.Duration) { m.confirmation.Observe(d.Seconds()) }
