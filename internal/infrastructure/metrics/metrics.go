// Package metrics holds the Prometheus collectors shared by the gateway and the
// messaging service. They register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marketchat",
		Subsystem: "gateway",
		Name:      "open_connections",
		Help:      "Number of open websocket connections on this node.",
	})

	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketchat",
		Subsystem: "gateway",
		Name:      "inbound_events_total",
		Help:      "Inbound websocket events by type.",
	}, []string{"type"})

	OutboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketchat",
		Subsystem: "gateway",
		Name:      "outbound_events_total",
		Help:      "Events enqueued to websocket clients by type.",
	}, []string{"type"})

	DroppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketchat",
		Subsystem: "gateway",
		Name:      "dropped_clients_total",
		Help:      "Clients disconnected because their send buffer was full.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketchat",
		Subsystem: "messaging",
		Name:      "messages_sent_total",
		Help:      "Messages committed, by conversation type.",
	}, []string{"conversation_type"})

	TranslationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketchat",
		Subsystem: "translation",
		Name:      "fallbacks_total",
		Help:      "Target languages that fell back to the original text.",
	}, []string{"target"})

	PresenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketchat",
		Subsystem: "presence",
		Name:      "errors_total",
		Help:      "Presence backend failures degraded to unknown status.",
	})
)
