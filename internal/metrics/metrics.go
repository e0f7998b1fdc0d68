// Package metrics содержит счётчики Prometheus для платежей, вебхуков и уведомлений.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки вебхука.
const (
	WebhookRejected  = "rejected"
	WebhookDuplicate = "duplicate"
	WebhookStale     = "stale"
	WebhookApplied   = "applied"
	WebhookFailed    = "failed"
)

var (
	// WebhookEvents считает обработанные уведомления шлюза по исходу и статусу платежа.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "webhook_events_total",
		Help:      "Payment gateway callbacks by outcome and payment status.",
	}, []string{"outcome", "status"})

	// PaymentsCreated считает открытые платёжные сессии по назначению (order, deposit) и результату.
	PaymentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "payments_created_total",
		Help:      "Payment sessions opened at the gateway.",
	}, []string{"kind", "result"})

	// NotificationsPublished считает сообщения, отправленные в шину уведомлений.
	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "notifications_published_total",
		Help:      "Notifications published to the bus.",
	}, []string{"result"})

	// NotificationsDelivered считает сообщения, обработанные слушателем шины.
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "notifications_delivered_total",
		Help:      "Notifications consumed from the bus by result.",
	}, []string{"result"})
)
