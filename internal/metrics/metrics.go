package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventSub worker metrics
var (
	// EventSubConnected is 1 while the worker is streaming, 0 otherwise.
	EventSubConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsub_connected",
			Help: "Whether the EventSub worker currently holds a streaming session",
		},
	)

	// EventSubReconnectsTotal counts session attempts that ended in the backoff path.
	EventSubReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_reconnects_total",
			Help: "Total EventSub session failures routed through backoff",
		},
	)

	// EventSubEventsTotal counts ingested events by kind.
	EventSubEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_events_total",
			Help: "Total ingested EventSub notifications by kind",
		},
		[]string{"kind"},
	)

	// EventSubUnknownEventsTotal counts dropped notifications with an unrecognized type.
	EventSubUnknownEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_unknown_events_total",
			Help: "Total EventSub notifications dropped due to unrecognized type",
		},
	)

	// SubscriptionRequestsTotal counts subscription creation requests by type and status.
	SubscriptionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_subscription_requests_total",
			Help: "Total subscription creation requests by subscription type and status",
		},
		[]string{"type", "status"},
	)

	// TokenRefreshesTotal counts token refresh attempts by status.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total OAuth token refresh attempts by status",
		},
		[]string{"status"},
	)
)

// Durable store metrics
var (
	// StoreSavesTotal counts persisted store writes.
	StoreSavesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_saves_total",
			Help: "Total atomic store writes to disk",
		},
	)

	// StoreSaveDuration tracks store write latency in seconds.
	StoreSaveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_save_duration_seconds",
			Help:    "Durable store write duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
	)
)

// Fan-out metrics
var (
	// BroadcastConnectedClients tracks currently attached overlay clients.
	BroadcastConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_connected_clients",
			Help: "Currently attached overlay WebSocket clients",
		},
	)

	// BroadcastMessagesTotal counts published fan-out messages by op.
	BroadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Total fan-out messages published by op",
		},
		[]string{"op"},
	)

	// BroadcastSlowClientsEvictedTotal counts clients evicted for failed delivery.
	BroadcastSlowClientsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_slow_clients_evicted_total",
			Help: "Total overlay clients evicted after a failed delivery",
		},
	)

	// WebSocketPingFailures counts failed keepalive pings to overlay clients.
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket ping attempts",
		},
	)
)
