package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	// HTTP API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge metrics
	BridgeMessages  *prometheus.CounterVec
	BridgeConnected prometheus.Gauge

	// Trusted request handler metrics
	XHRStarted  prometheus.Counter
	XHRFinished *prometheus.CounterVec
	XHRDuration prometheus.Histogram
	XHRInFlight prometheus.Gauge

	// Page-side request metrics
	ResponsesDropped prometheus.Counter

	// Install pipeline metrics
	InstallDecisions *prometheus.CounterVec
	Confirmations    *prometheus.CounterVec

	// Sandbox metrics
	ScriptRuns     *prometheus.CounterVec
	ScriptDuration prometheus.Histogram
}

// NewMetrics registers every metric on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		BridgeMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_bridge_messages_total",
				Help: "Bridge messages by direction and command",
			},
			[]string{"direction", "cmd"},
		),
		BridgeConnected: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "scripthost_bridge_connections",
				Help: "Open bridge connections",
			},
		),
		XHRStarted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scripthost_xhr_started_total",
				Help: "Privileged requests started on behalf of scripts",
			},
		),
		XHRFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_xhr_finished_total",
				Help: "Privileged requests finished, by terminal event",
			},
			[]string{"event"},
		),
		XHRDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scripthost_xhr_duration_seconds",
				Help:    "Privileged request duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		XHRInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "scripthost_xhr_in_flight",
				Help: "Privileged requests currently running",
			},
		),
		ResponsesDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scripthost_responses_dropped_total",
				Help: "Responses for unknown or finished request ids",
			},
		),
		InstallDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_install_decisions_total",
				Help: "Network observer decisions",
			},
			[]string{"decision"},
		),
		Confirmations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_confirmations_total",
				Help: "Install confirmations by outcome",
			},
			[]string{"outcome"},
		),
		ScriptRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_script_runs_total",
				Help: "User script executions by status",
			},
			[]string{"status"},
		),
		ScriptDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scripthost_script_duration_seconds",
				Help:    "User script execution time including its event loop",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 5},
			},
		),
	}
}

// RecordHTTPRequest records an API request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBridgeMessage counts a message; direction is "in" or "out".
func (m *Metrics) RecordBridgeMessage(direction, cmd string) {
	if m == nil {
		return
	}
	m.BridgeMessages.WithLabelValues(direction, cmd).Inc()
}

// BridgeOpened tracks a new connection.
func (m *Metrics) BridgeOpened() {
	if m == nil {
		return
	}
	m.BridgeConnected.Inc()
}

// BridgeClosed tracks a closed connection.
func (m *Metrics) BridgeClosed() {
	if m == nil {
		return
	}
	m.BridgeConnected.Dec()
}

// XHRStart records a started privileged request.
func (m *Metrics) XHRStart() {
	if m == nil {
		return
	}
	m.XHRStarted.Inc()
	m.XHRInFlight.Inc()
}

// XHRFinish records the terminal event of a privileged request.
func (m *Metrics) XHRFinish(event string, duration time.Duration) {
	if m == nil {
		return
	}
	m.XHRFinished.WithLabelValues(event).Inc()
	m.XHRDuration.Observe(duration.Seconds())
	m.XHRInFlight.Dec()
}

// ResponseDropped counts a response for an unknown request id.
func (m *Metrics) ResponseDropped() {
	if m == nil {
		return
	}
	m.ResponsesDropped.Inc()
}

// InstallDecision counts a network observer decision.
func (m *Metrics) InstallDecision(decision string) {
	if m == nil {
		return
	}
	m.InstallDecisions.WithLabelValues(decision).Inc()
}

// Confirmation counts a confirmation outcome ("created", "invalid", ...).
func (m *Metrics) Confirmation(outcome string) {
	if m == nil {
		return
	}
	m.Confirmations.WithLabelValues(outcome).Inc()
}

// ScriptRun records one sandboxed execution.
func (m *Metrics) ScriptRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ScriptRuns.WithLabelValues(status).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
}
