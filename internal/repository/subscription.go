package repository

import (
	"context"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
)

// SubscriptionRepository определяет методы для работы с хранилищем подписок.
// Строка одна на пользователя и меняется только обработчиками вебхуков.
type SubscriptionRepository interface {
	// Upsert создает или обновляет подписку по user_id.
	Upsert(ctx context.Context, sub *domain.UserSubscription) error

	// GetByUserID возвращает подписку пользователя.
	GetByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error)

	// GetByStripeSubscriptionID возвращает подписку по её Stripe ID.
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error)

	// GetByStripeCustomerID возвращает подписку по Stripe Customer ID.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.UserSubscription, error)
}
