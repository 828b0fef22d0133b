package domain

import (
	"time"
)

// Типы событий Stripe, которые обрабатывает сервис
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// ProcessedWebhookEvent запись об успешно обработанной доставке
type ProcessedWebhookEvent struct {
	EventID     string    `db:"event_id" json:"eventId"`
	EventType   string    `db:"event_type" json:"eventType"`
	ProcessedAt time.Time `db:"processed_at" json:"processedAt"`
}
