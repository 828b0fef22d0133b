package domain

import (
	"time"
)

// SubscriptionStatus статус подписки (значения совпадают со Stripe)
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Entitled возвращает true, если статус дает доступ к тарифу плана
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// UserSubscription последнее известное состояние подписки Stripe для пользователя
type UserSubscription struct {
	UserID               string             `db:"user_id" json:"userId"`
	PlanID               string             `db:"plan_id" json:"planId"`
	StripeCustomerID     string             `db:"stripe_customer_id" json:"stripeCustomerId"`
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripeSubscriptionId"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	CurrentPeriodStart   *time.Time         `db:"current_period_start" json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end" json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end" json:"cancelAtPeriodEnd"`
	CanceledAt           *time.Time         `db:"canceled_at" json:"canceledAt,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updatedAt"`
}

// SubscriptionPlan план подписки, связывающий цену Stripe с уровнем
type SubscriptionPlan struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	Tier          Tier   `db:"tier" json:"tier"`
	StripePriceID string `db:"stripe_price_id" json:"stripePriceId"`
	Active        bool   `db:"active" json:"active"`
}

// SubscriptionEvent событие изменения подписки, публикуемое в Kafka
type SubscriptionEvent struct {
	EventID    string             `json:"eventId"`
	UserID     string             `json:"userId"`
	PlanID     string             `json:"planId"`
	Status     SubscriptionStatus `json:"status"`
	Tier       Tier               `json:"tier"`
	Source     string             `json:"source"` // тип события Stripe
	OccurredAt time.Time          `json:"occurredAt"`
}
