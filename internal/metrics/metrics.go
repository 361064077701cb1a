// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDispatched counts inbound channel events by name.
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_dispatched_total",
			Help: "Inbound channel events dispatched to handlers",
		},
		[]string{"event"},
	)

	// EventsDropped counts events dropped at the dispatch isolation
	// boundary (malformed payload, handler panic, unknown event).
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_dropped_total",
			Help: "Inbound channel events dropped as non-fatal",
		},
		[]string{"event", "reason"},
	)

	// ReconnectAttempts counts reconnect attempts since process start.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_reconnect_attempts_total",
			Help: "Reconnect attempts made by the sync engine",
		},
	)

	// ConnectionState exports the current connection state as a labeled
	// gauge (1 for the active state, 0 otherwise).
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "Current channel connection state",
		},
		[]string{"state"},
	)

	// OutboxPending tracks queued messages awaiting a live channel.
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_outbox_pending",
			Help: "Messages queued in the outbox",
		},
	)

	// UnreadTotal mirrors the conversation store's total unread counter.
	UnreadTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_unread_total",
			Help: "Sum of unread counts across conversations",
		},
	)
)

// SetConnectionState flips the state gauge so exactly one label is 1.
func SetConnectionState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}
