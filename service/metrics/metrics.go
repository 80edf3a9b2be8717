package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realtime"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "connections",
		Help: "Open websocket connections.",
	})
	FramesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "frames_in_total",
		Help: "Inbound frames by type.",
	}, []string{"type"})
	FrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "frame_errors_total",
		Help: "ERROR frames sent, by code.",
	}, []string{"code"})

	PushDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pubsub", Name: "delivered_total",
		Help: "Events enqueued to local subscribers.",
	})
	PushDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pubsub", Name: "dropped_total",
		Help: "Events dropped because a subscriber queue was full.",
	})

	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chat", Name: "messages_appended_total",
		Help: "Messages persisted.",
	})
	DMRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chat", Name: "dm_create_conflicts_total",
		Help: "Direct message creations that lost the unique-key race and re-read.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "notification", Name: "created_total",
		Help: "Notifications persisted, by type and whether a live push was attempted.",
	}, []string{"type", "pushed"})

	KafkaEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "kafka", Name: "events_total",
		Help: "Domain events consumed, by outcome.",
	}, []string{"outcome"})
)

// Handler GET /metrics
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
