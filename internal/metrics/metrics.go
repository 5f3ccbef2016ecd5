// Package metrics defines all custom Prometheus metrics for the qrconnect
// sync client. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics register with the default Prometheus registry on import; a host
// application exposes them however it serves its own /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qrconnect"

// ── Message metrics ──────────────────────────────────────────────────────────

// MessagesSentTotal counts locally sent messages that the server confirmed.
var MessagesSentTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Total number of messages sent and confirmed by the server.",
	},
)

// MessagesReceivedTotal counts messages delivered over the push channel.
// Label:
//   - result: "applied" (new entry) or "duplicate" (echo collapsed by id)
var MessagesReceivedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Total number of inbound push messages, labelled by reconciliation result.",
	},
	[]string{"result"},
)

// ── Pairing metrics ──────────────────────────────────────────────────────────

// PairingsTotal counts scan-to-connection attempts.
// Label:
//   - result: "paired", "invalid_payload", "self", "error"
var PairingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pairings_total",
		Help:      "Total number of pairing attempts from scanned codes, by outcome.",
	},
	[]string{"result"},
)

// ── Transport metrics ────────────────────────────────────────────────────────

// SocketReconnectsTotal counts reconnection attempts made by the transport
// channel after a drop.
var SocketReconnectsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "socket_reconnects_total",
		Help:      "Total number of automatic socket reconnection attempts.",
	},
)

// SocketConnected reports the current transport state (1 connected, 0 not).
var SocketConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "socket_connected",
		Help:      "Whether the realtime channel is currently connected.",
	},
)
