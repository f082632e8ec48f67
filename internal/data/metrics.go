package data

import (
	"time"

	"Momentum/pkg/circuit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var connectBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// NewRegistry creates the Prometheus registry served on /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// StreamMetrics holds Prometheus metrics for supervised streams.
type StreamMetrics struct {
	circuitState      *prometheus.GaugeVec   // 0=closed, 1=open, 2=half-open
	transitions       *prometheus.CounterVec // Breaker transitions by from/to
	rejected          *prometheus.CounterVec // Attempts refused by an open breaker
	connected         *prometheus.GaugeVec   // 1 while the stream is open
	messages          *prometheus.CounterVec // Decoded message events
	heartbeats        *prometheus.CounterVec // Heartbeat events
	errors            *prometheus.CounterVec // Public error events by kind
	reconnectAttempts *prometheus.GaugeVec   // Consecutive reconnect attempts
	connectDuration   *prometheus.HistogramVec
}

// NewStreamMetrics creates and registers stream metrics with reg.
func NewStreamMetrics(reg prometheus.Registerer) (*StreamMetrics, error) {
	m := &StreamMetrics{
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "momentum",
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"stream"}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "circuit",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"stream", "from", "to"}),

		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "circuit",
			Name:      "rejected_total",
			Help:      "Connection attempts rejected by an open circuit",
		}, []string{"stream"}),

		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "momentum",
			Subsystem: "stream",
			Name:      "connected",
			Help:      "Whether the stream is connected (1) or not (0)",
		}, []string{"stream"}),

		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Message events received from the stream",
		}, []string{"stream"}),

		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "stream",
			Name:      "heartbeats_total",
			Help:      "Heartbeat events received from the stream",
		}, []string{"stream"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "stream",
			Name:      "errors_total",
			Help:      "Stream errors by kind",
		}, []string{"stream", "kind"}),

		reconnectAttempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "momentum",
			Subsystem: "stream",
			Name:      "reconnect_attempts",
			Help:      "Consecutive reconnect attempts since the last open",
		}, []string{"stream"}),

		connectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "momentum",
			Subsystem: "stream",
			Name:      "connect_duration_seconds",
			Help:      "Time to establish the stream",
			Buckets:   connectBuckets,
		}, []string{"stream"}),
	}

	for _, c := range []prometheus.Collector{
		m.circuitState, m.transitions, m.rejected, m.connected, m.messages,
		m.heartbeats, m.errors, m.reconnectAttempts, m.connectDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CircuitTransition records a breaker transition and the new state.
func (m *StreamMetrics) CircuitTransition(stream string, from, to circuit.State) {
	m.transitions.WithLabelValues(stream, from.String(), to.String()).Inc()
	m.circuitState.WithLabelValues(stream).Set(float64(to))
}

// Rejected counts an attempt refused by the breaker.
func (m *StreamMetrics) Rejected(stream string) {
	m.rejected.WithLabelValues(stream).Inc()
}

// Connected sets the connection gauge.
func (m *StreamMetrics) Connected(stream string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.connected.WithLabelValues(stream).Set(v)
}

// Message counts a message event.
func (m *StreamMetrics) Message(stream string) {
	m.messages.WithLabelValues(stream).Inc()
}

// Heartbeat counts a heartbeat event.
func (m *StreamMetrics) Heartbeat(stream string) {
	m.heartbeats.WithLabelValues(stream).Inc()
}

// Error counts an error event of the given kind.
func (m *StreamMetrics) Error(stream, kind string) {
	m.errors.WithLabelValues(stream, kind).Inc()
}

// ReconnectAttempts sets the reconnect attempts gauge.
func (m *StreamMetrics) ReconnectAttempts(stream string, n int) {
	m.reconnectAttempts.WithLabelValues(stream).Set(float64(n))
}

// ConnectDuration observes the time taken by a successful open.
func (m *StreamMetrics) ConnectDuration(stream string, d time.Duration) {
	m.connectDuration.WithLabelValues(stream).Observe(d.Seconds())
}
