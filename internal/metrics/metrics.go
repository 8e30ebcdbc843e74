package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection lifecycle metrics
var (
	// ConnectionsCurrent tracks currently registered connections per protocol
	ConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_connections_current",
			Help: "Currently registered connections by protocol",
		},
		[]string{"protocol"},
	)

	// ConnectionsTotal tracks accepted connections per protocol
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total accepted connections by protocol",
		},
		[]string{"protocol"},
	)

	// ConnectionsRejected tracks upgrade requests refused before registration
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_rejected_total",
			Help: "Upgrade requests rejected by protocol and reason",
		},
		[]string{"protocol", "reason"},
	)

	// Evictions tracks zombie connections removed by the heartbeat sweep
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_evictions_total",
			Help: "Zombie connections evicted by protocol",
		},
		[]string{"protocol"},
	)
)

// Heartbeat metrics
var (
	// ProbeSendFailures tracks heartbeat probe frames that could not be written
	ProbeSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_probe_send_failures_total",
			Help: "Heartbeat probe send failures by protocol",
		},
		[]string{"protocol"},
	)
)

// Relay metrics
var (
	// MessagesRelayed tracks broadcast fan-outs performed
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages relayed by protocol",
		},
		[]string{"protocol"},
	)

	// RelayRecipients tracks how many recipients each broadcast reached
	RelayRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_recipients_per_message",
			Help:    "Recipients reached per relayed message",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// SendFailures tracks per-recipient delivery failures during fan-out
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Per-recipient send failures by protocol",
		},
		[]string{"protocol"},
	)

	// MessageSendDuration tracks websocket write latency in seconds
	MessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_message_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)
