package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_provider_calls_total",
			Help: "Calls to payment gateways by provider, operation and outcome",
		},
		[]string{"provider", "op", "outcome"},
	)

	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_fallback_total",
			Help: "Payment sessions that hopped from the primary to the backup gateway",
		},
		[]string{"primary", "backup", "outcome"},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_dispatch_total",
			Help: "Delivery dispatches by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	DeliveryAPIAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_api_attempts_total",
			Help: "Outbound delivery API attempts by result class",
		},
		[]string{"result"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_queue_items_total",
			Help: "Notification queue items processed by template and outcome",
		},
		[]string{"template", "outcome"},
	)

	AdminAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_alerts_total",
			Help: "Chat-ops alerts by outcome",
		},
		[]string{"outcome"},
	)

	QueueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_total",
			Help: "Consumed RabbitMQ and Kafka messages by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)
