// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for mcproxy.
//
// All recording methods are safe to call on a nil *Metrics, which turns
// instrumentation off.
package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/absmach/mcproxy/pkg/parser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for mcproxy.
type Metrics struct {
	// Connection metrics
	ActiveConnections   prometheus.Gauge
	TotalConnections    *prometheus.CounterVec
	ConnectionErrors    *prometheus.CounterVec
	ConnectionDuration  prometheus.Histogram
	RejectedConnections *prometheus.CounterVec

	// Protocol metrics
	Handshakes      *prometheus.CounterVec
	RouteDecisions  *prometheus.CounterVec
	StatusResponses prometheus.Counter
	Pings           *prometheus.CounterVec

	// Relay metrics
	ActiveRelays  *prometheus.GaugeVec
	BytesRelayed  *prometheus.CounterVec
	BackendErrors *prometheus.CounterVec
	DialDuration  *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedHandshakes *prometheus.CounterVec

	// Configuration metrics
	ConfigReloads     *prometheus.CounterVec
	RoutingEntries    prometheus.Gauge
	LastReloadSuccess prometheus.Gauge

	// Resource metrics
	GoroutinesActive prometheus.Gauge
	MemoryAllocated  *prometheus.GaugeVec
}

// New creates a new Metrics instance registered with reg. A nil reg uses the
// default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "mcproxy"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of currently open client connections",
		}),
		TotalConnections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of client connections by outcome",
		}, []string{"outcome"}),
		ConnectionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Total number of connections aborted by an error",
		}, []string{"error_type"}),
		ConnectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Client connection duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 3600},
		}),
		RejectedConnections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Connections closed before reading a packet",
		}, []string{"reason"}),
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Handshakes read, by declared intent",
		}, []string{"intent"}),
		RouteDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions after a handshake",
		}, []string{"decision"}),
		StatusResponses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_responses_total",
			Help:      "Locally emulated status responses sent",
		}),
		Pings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pings_total",
			Help:      "Ping packets on unrouted connections",
		}, []string{"echoed"}),
		ActiveRelays: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_relays",
			Help:      "Number of connections currently relayed, by backend",
		}, []string{"backend"}),
		BytesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_bytes_total",
			Help:      "Bytes copied between clients and backends",
		}, []string{"direction"}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total number of backend errors",
		}, []string{"backend", "error_type"}),
		DialDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_dial_duration_seconds",
			Help:      "Time to open a backend connection",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		}, []string{"backend"}),
		CircuitBreakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		}, []string{"backend"}),
		RateLimitedHandshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_handshakes_total",
			Help:      "Handshakes rejected by a rate limiter",
		}, []string{"limiter_type"}),
		ConfigReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Routing table reload attempts",
		}, []string{"status"}),
		RoutingEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routing_entries",
			Help:      "Number of entries in the current routing table",
		}),
		LastReloadSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_last_reload_success_timestamp_seconds",
			Help:      "Unix time of the last successful routing table load",
		}),
		GoroutinesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_active",
			Help:      "Number of active goroutines",
		}),
		MemoryAllocated: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_allocated_bytes",
			Help:      "Memory allocated in bytes",
		}, []string{"type"}),
	}
}

// ObserveConnection tracks a client connection lifecycle.
func (m *Metrics) ObserveConnection(f func() error) error {
	if m == nil {
		return f()
	}
	m.ActiveConnections.Inc()
	defer m.ActiveConnections.Dec()

	start := time.Now()
	defer func() {
		m.ConnectionDuration.Observe(time.Since(start).Seconds())
	}()

	err := f()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.TotalConnections.WithLabelValues(outcome).Inc()

	return err
}

// ConnectionError counts a connection aborted by an error of the given type.
func (m *Metrics) ConnectionError(errorType string) {
	if m == nil {
		return
	}
	m.ConnectionErrors.WithLabelValues(errorType).Inc()
}

// ConnectionRejected counts a connection closed before it was served.
func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedConnections.WithLabelValues(reason).Inc()
}

// ObserveDial records a backend dial attempt.
func (m *Metrics) ObserveDial(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DialDuration.WithLabelValues(backend).Observe(d.Seconds())
	if err != nil {
		m.BackendErrors.WithLabelValues(backend, "dial").Inc()
	}
}

// BackendError counts a backend error other than a failed dial.
func (m *Metrics) BackendError(backend, errorType string) {
	if m == nil {
		return
	}
	m.BackendErrors.WithLabelValues(backend, errorType).Inc()
}

// ObserveRelay tracks a relayed connection while f runs.
func (m *Metrics) ObserveRelay(backend string, f func() error) error {
	if m == nil {
		return f()
	}
	m.ActiveRelays.WithLabelValues(backend).Inc()
	defer m.ActiveRelays.WithLabelValues(backend).Dec()
	return f()
}

// AddRelayed adds n bytes copied in direction dir.
func (m *Metrics) AddRelayed(dir parser.Direction, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRelayed.WithLabelValues(dir.String()).Add(float64(n))
}

// ObserveReload records a routing table reload and the size of the table in effect.
func (m *Metrics) ObserveReload(err error, entries int) {
	if m == nil {
		return
	}
	if err != nil {
		m.ConfigReloads.WithLabelValues("error").Inc()
		return
	}
	m.ConfigReloads.WithLabelValues("success").Inc()
	m.RoutingEntries.Set(float64(entries))
	m.LastReloadSuccess.SetToCurrentTime()
}

// HandshakeRead counts a decoded handshake by declared intent.
func (m *Metrics) HandshakeRead(intent int32) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(intentLabel(intent)).Inc()
}

// RouteDecision counts the outcome of a routing lookup: forward, emulate or close.
func (m *Metrics) RouteDecision(decision string) {
	if m == nil {
		return
	}
	m.RouteDecisions.WithLabelValues(decision).Inc()
}

// StatusServed counts a locally emulated status response.
func (m *Metrics) StatusServed() {
	if m == nil {
		return
	}
	m.StatusResponses.Inc()
}

// PingServed counts a ping on an unrouted connection.
func (m *Metrics) PingServed(echoed bool) {
	if m == nil {
		return
	}
	m.Pings.WithLabelValues(strconv.FormatBool(echoed)).Inc()
}

// BreakerState records the circuit breaker state for backend.
// A transition to open also counts as a trip.
func (m *Metrics) BreakerState(backend string, state int, tripped bool) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(backend).Set(float64(state))
	if tripped {
		m.CircuitBreakerTrips.WithLabelValues(backend).Inc()
	}
}

// RateLimited counts a handshake rejected by the named limiter.
func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedHandshakes.WithLabelValues(limiter).Inc()
}

// UpdateResources samples goroutine and heap usage.
func (m *Metrics) UpdateResources() {
	if m == nil {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
	m.MemoryAllocated.WithLabelValues("heap").Set(float64(ms.HeapAlloc))
	m.MemoryAllocated.WithLabelValues("sys").Set(float64(ms.Sys))
}

func intentLabel(intent int32) string {
	switch intent {
	case 1:
		return "status"
	case 2:
		return "login"
	case 3:
		return "transfer"
	default:
		return "other"
	}
}
