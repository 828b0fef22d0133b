package domain

import (
	"time"
)

// PaymentStatus статус платежа по инвойсу
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentRecord запись истории платежей (только добавление)
type PaymentRecord struct {
	ID                    int64         `db:"id" json:"id"`
	UserID                string        `db:"user_id" json:"userId"`
	SubscriptionID        string        `db:"subscription_id" json:"subscriptionId"`
	StripePaymentIntentID string        `db:"stripe_payment_intent_id" json:"stripePaymentIntentId"`
	StripeInvoiceID       string        `db:"stripe_invoice_id" json:"stripeInvoiceId"`
	Amount                int64         `db:"amount" json:"amount"` // в минимальных единицах валюты
	Currency              string        `db:"currency" json:"currency"`
	Status                PaymentStatus `db:"status" json:"status"`
	PaymentMethod         string        `db:"payment_method" json:"paymentMethod"`
	Description           string        `db:"description" json:"description"`
	ReceiptURL            string        `db:"receipt_url" json:"receiptUrl"`
	CreatedAt             time.Time     `db:"created_at" json:"createdAt"`
}
