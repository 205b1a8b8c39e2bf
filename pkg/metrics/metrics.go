// Package metrics provides the Prometheus collectors exported by the converse
// service and a fiber middleware that records request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/converse/pkg/llm"
)

// LLMBuckets defines histogram buckets suited for model inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_requests_total",
			Help: "Total requests",
		},
		[]string{"route", "status"},
	)

	// RequestDuration records time until the handler returns. For streamed
	// routes this is the time to first byte, not the full stream.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converse_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"route"},
	)

	// StreamingConnections tracks streams currently being forwarded to clients.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "converse_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// StreamDuration records how long a completed stream stayed open.
	StreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converse_stream_duration_seconds",
			Help:    "Stream duration",
			Buckets: LLMBuckets,
		},
		[]string{"backend", "outcome"},
	)

	// StreamDeltasTotal counts text deltas forwarded to clients.
	StreamDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_stream_deltas_total",
			Help: "Stream deltas",
		},
		[]string{"backend"},
	)

	// MalformedEnvelopesTotal counts stream envelopes that failed to parse.
	MalformedEnvelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_stream_malformed_envelopes_total",
			Help: "Malformed stream envelopes",
		},
		[]string{"backend"},
	)

	// BackendTokensTotal counts tokens reported by Bedrock by direction (input/output).
	BackendTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_backend_tokens_total",
			Help: "Token count",
		},
		[]string{"backend", "direction"},
	)

	// EventsDroppedTotal counts invocation events dropped because the
	// publishing queue was full.
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "converse_events_dropped_total",
			Help: "Dropped invocation events",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		StreamDuration,
		StreamDeltasTotal,
		MalformedEnvelopesTotal,
		BackendTokensTotal,
		EventsDroppedTotal,
	)
}

// ObserveUsage adds Bedrock's token counts for one invocation.
func ObserveUsage(backend string, u *llm.Usage) {
	if u == nil {
		return
	}
	BackendTokensTotal.WithLabelValues(backend, "input").Add(float64(u.InputTokens))
	BackendTokensTotal.WithLabelValues(backend, "output").Add(float64(u.OutputTokens))
}
