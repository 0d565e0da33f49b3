// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_conversations_total",
			Help: "Total conversations created",
		},
		[]string{"type"},
	)

	// MessagesTotal tracks total messages accepted into the ledger.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total messages sent",
		},
		[]string{"kind"},
	)

	// EventsPublishedTotal tracks events handed to the broadcaster.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Total real-time events published",
		},
		[]string{"type"},
	)

	// EventDeliveryFailures tracks failed per-session deliveries.
	EventDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_event_delivery_failures_total",
			Help: "Event deliveries dropped because a session could not accept them",
		},
	)

	// WSConnectionsActive tracks active websocket sessions.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Number of active websocket sessions",
		},
	)

	// UnreadQueryDuration tracks unread-count query latency.
	UnreadQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_unread_query_duration_seconds",
			Help:    "Unread count computation duration",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementWSConnections increments the active websocket session count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active websocket session count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
