package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every recording method is safe
// to call on a nil *Metrics so components can run without monitoring.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bus metrics
	BusMessages     *prometheus.CounterVec
	BusRequests     *prometheus.CounterVec
	BusLatency      prometheus.Histogram
	PendingRequests prometheus.Gauge

	// Worker metrics
	WorkersLive          prometheus.Gauge
	Lifecycle            *prometheus.CounterVec
	Restarts             prometheus.Counter
	UnrecoverableWorkers prometheus.Counter

	// Window state metrics
	WindowStateFlushes *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON API
type Snapshot struct {
	Messages      int64   `json:"messages"`
	Denied        int64   `json:"denied"`
	Requests      int64   `json:"requests"`
	Timeouts      int64   `json:"timeouts"`
	WorkersLive   int64   `json:"workers_live"`
	Restarts      int64   `json:"restarts"`
	Unrecoverable int64   `json:"unrecoverable"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a collector on its own registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates a collector registered on reg
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shell_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shell_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		BusMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shell_bus_messages_total",
				Help: "Bus operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		BusRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shell_bus_requests_total",
				Help: "Resolved bus requests by outcome",
			},
			[]string{"outcome"},
		),
		BusLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shell_bus_request_duration_seconds",
				Help:    "Time from request to resolution",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
		),
		PendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shell_bus_pending_requests",
				Help: "Requests awaiting resolution",
			},
		),

		WorkersLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shell_workers_live",
				Help: "Workers in a non-terminal state",
			},
		),
		Lifecycle: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shell_worker_transitions_total",
				Help: "Worker lifecycle transitions by target state",
			},
			[]string{"state"},
		),
		Restarts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shell_worker_restarts_total",
				Help: "Essential worker restarts",
			},
		),
		UnrecoverableWorkers: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shell_workers_unrecoverable_total",
				Help: "Essential workers that exhausted their restart policy",
			},
		),

		WindowStateFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shell_window_state_flushes_total",
				Help: "Window state file writes by outcome",
			},
			[]string{"outcome"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shell_ws_connections",
				Help: "Number of active bridge WebSocket connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shell_uptime_seconds",
				Help: "Host uptime in seconds",
			},
		),
	}

	return m
}

// Registry exposes the underlying registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBusMessage records one bus operation outcome
func (m *Metrics) RecordBusMessage(kind, outcome string) {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues(kind, outcome).Inc()

	m.mu.Lock()
	m.snapshot.Messages++
	if outcome == "denied" {
		m.snapshot.Denied++
	}
	m.mu.Unlock()
}

// RecordRequest records a resolved request
func (m *Metrics) RecordRequest(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BusRequests.WithLabelValues(outcome).Inc()
	m.BusLatency.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Requests++
	if outcome == "timeout" {
		m.snapshot.Timeouts++
	}
	m.mu.Unlock()
}

// PendingRequestsInc counts a new pending request
func (m *Metrics) PendingRequestsInc() {
	if m == nil {
		return
	}
	m.PendingRequests.Inc()
}

// PendingRequestsDec counts a resolved pending request
func (m *Metrics) PendingRequestsDec() {
	if m == nil {
		return
	}
	m.PendingRequests.Dec()
}

// RecordTransition records a worker entering state
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.Lifecycle.WithLabelValues(state).Inc()
}

// SetWorkersLive sets the number of live workers
func (m *Metrics) SetWorkersLive(count int) {
	if m == nil {
		return
	}
	m.WorkersLive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.WorkersLive = int64(count)
	m.mu.Unlock()
}

// IncRestarts counts an essential worker restart
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
	m.mu.Lock()
	m.snapshot.Restarts++
	m.mu.Unlock()
}

// IncUnrecoverable counts a worker that gave up restarting
func (m *Metrics) IncUnrecoverable() {
	if m == nil {
		return
	}
	m.UnrecoverableWorkers.Inc()
	m.mu.Lock()
	m.snapshot.Unrecoverable++
	m.mu.Unlock()
}

// RecordFlush records a window state write
func (m *Metrics) RecordFlush(outcome string) {
	if m == nil {
		return
	}
	m.WindowStateFlushes.WithLabelValues(outcome).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns current values
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	uptime := time.Since(m.startTime).Seconds()
	m.Uptime.Set(uptime)

	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = uptime
	return s
}
