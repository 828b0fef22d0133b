package repository

import (
	"context"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
)

// PaymentRepository история платежей по инвойсам.
type PaymentRepository interface {
	// Record добавляет запись; повтор с тем же (invoice, status) возвращает false.
	Record(ctx context.Context, payment *domain.PaymentRecord) (bool, error)

	// ListByUserID возвращает последние платежи пользователя.
	ListByUserID(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error)
}

// PlanRepository справочник планов подписки.
type PlanRepository interface {
	GetByPriceID(ctx context.Context, stripePriceID string) (*domain.SubscriptionPlan, error)
	GetByID(ctx context.Context, planID string) (*domain.SubscriptionPlan, error)
	List(ctx context.Context) ([]domain.SubscriptionPlan, error)
	Upsert(ctx context.Context, plan *domain.SubscriptionPlan) error
}

// WebhookEventRepository журнал обработанных доставок вебхуков.
type WebhookEventRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}
