package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks live websocket connections on this process.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Number of live websocket connections",
	})

	// EventsTotal counts inbound events by name.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "dispatcher",
		Name:      "events_total",
		Help:      "Inbound events dispatched, by event name",
	}, []string{"event"})

	// EventErrorsTotal counts errors surfaced to clients by kind.
	EventErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "dispatcher",
		Name:      "event_errors_total",
		Help:      "Domain errors emitted to clients, by error kind",
	}, []string{"kind"})

	// MessagesRoutedTotal counts persisted-and-fanned-out messages by type.
	MessagesRoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "router",
		Name:      "messages_routed_total",
		Help:      "Messages persisted and fanned out, by message type",
	}, []string{"type"})

	// BackplaneEventsTotal counts backplane traffic by direction.
	BackplaneEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "backplane",
		Name:      "events_total",
		Help:      "Backplane events published and applied, by direction",
	}, []string{"direction"})
)
