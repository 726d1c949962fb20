// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the SDK.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsCreated *prometheus.CounterVec

	// Trading metrics
	QuotesFetched       prometheus.Counter
	TradesSubmitted     *prometheus.CounterVec
	TradeOutcomes       *prometheus.CounterVec
	ConfirmationLatency prometheus.Histogram

	// Solana RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Stream metrics
	StreamTransitions *prometheus.CounterVec
	StreamReconnects  *prometheus.CounterVec
	StreamsActive     prometheus.Gauge

	// Relay metrics
	RelayWrites *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "clawdvault"
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Launchpad API request duration in seconds by operation and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),

		SessionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of session creation attempts by outcome",
		}, []string{"outcome"}),

		QuotesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "quotes_fetched_total",
			Help:      "Total number of quotes fetched",
		}),
		TradesSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "submitted_total",
			Help:      "Total number of signed transactions submitted by type",
		}, []string{"type"}),
		TradeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "outcomes_total",
			Help:      "Total number of trade outcomes by type and outcome",
		}, []string{"type", "outcome"}),
		ConfirmationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to on-chain confirmation in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		StreamTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state_transitions_total",
			Help:      "Total number of stream state transitions by topic and target state",
		}, []string{"topic", "state"}),
		StreamReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled stream reconnect attempts by topic",
		}, []string{"topic"}),
		StreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of stream connections currently registered",
		}),

		RelayWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "writes_total",
			Help:      "Total number of relay sink writes by sink and result",
		}, []string{"sink", "result"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records an API request. status 0 means no response.
func (m *Metrics) ObserveRequest(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(d.Seconds())
}

// RecordSession records a session creation attempt.
func (m *Metrics) RecordSession(outcome string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(outcome).Inc()
}

// RecordQuote increments the quote counter.
func (m *Metrics) RecordQuote() {
	if m == nil {
		return
	}
	m.QuotesFetched.Inc()
}

// RecordSubmitted records a submitted transaction.
func (m *Metrics) RecordSubmitted(tradeType string) {
	if m == nil {
		return
	}
	m.TradesSubmitted.WithLabelValues(tradeType).Inc()
}

// RecordOutcome records the final outcome of a trade.
func (m *Metrics) RecordOutcome(tradeType, outcome string) {
	if m == nil {
		return
	}
	m.TradeOutcomes.WithLabelValues(tradeType, outcome).Inc()
}

// ObserveConfirmation records submission-to-confirmation latency.
func (m *Metrics) ObserveConfirmation(d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmationLatency.Observe(d.Seconds())
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordTransition records a stream entering state.
func (m *Metrics) RecordTransition(topic, state string) {
	if m == nil {
		return
	}
	m.StreamTransitions.WithLabelValues(topic, state).Inc()
}

// RecordReconnect records a scheduled reconnect attempt.
func (m *Metrics) RecordReconnect(topic string) {
	if m == nil {
		return
	}
	m.StreamReconnects.WithLabelValues(topic).Inc()
}

// AddActiveStreams adjusts the active stream gauge.
func (m *Metrics) AddActiveStreams(delta int) {
	if m == nil {
		return
	}
	m.StreamsActive.Add(float64(delta))
}

// RecordRelayWrite records a relay sink write.
func (m *Metrics) RecordRelayWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RelayWrites.WithLabelValues(sink, result).Inc()
}
