package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `
    user_id, plan_id,
    COALESCE(stripe_customer_id, '') AS stripe_customer_id,
    COALESCE(stripe_subscription_id, '') AS stripe_subscription_id,
    status, current_period_start, current_period_end,
    cancel_at_period_end, canceled_at, created_at, updated_at`

// postgresSubscriptionRepo реализует SubscriptionRepository для PostgreSQL.
type postgresSubscriptionRepo struct {
	db  *sqlx.DB       // Подключение к БД через sqlx
	log *logger.Logger // Логгер
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{
		db:  db,
		log: log,
	}
}

// Upsert сохраняет подписку; повторная доставка того же события дает ту же строку.
func (r *postgresSubscriptionRepo) Upsert(ctx context.Context, sub *domain.UserSubscription) error {
	query := `
        INSERT INTO user_subscriptions (
            user_id, plan_id, stripe_customer_id, stripe_subscription_id, status,
            current_period_start, current_period_end, cancel_at_period_end, canceled_at
        ) VALUES (
            :user_id, :plan_id, NULLIF(:stripe_customer_id, ''), NULLIF(:stripe_subscription_id, ''), :status,
            :current_period_start, :current_period_end, :cancel_at_period_end, :canceled_at
        )
        ON CONFLICT (user_id) DO UPDATE SET
            plan_id                = COALESCE(NULLIF(EXCLUDED.plan_id, ''), user_subscriptions.plan_id),
            stripe_customer_id     = COALESCE(EXCLUDED.stripe_customer_id, user_subscriptions.stripe_customer_id),
            stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, user_subscriptions.stripe_subscription_id),
            status                 = EXCLUDED.status,
            current_period_start   = COALESCE(EXCLUDED.current_period_start, user_subscriptions.current_period_start),
            current_period_end     = COALESCE(EXCLUDED.current_period_end, user_subscriptions.current_period_end),
            cancel_at_period_end   = EXCLUDED.cancel_at_period_end,
            canceled_at            = EXCLUDED.canceled_at,
            updated_at             = now()`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		if isUniqueViolation(err) {
			r.log.Warnw("Stripe subscription already linked to another user", "userID", sub.UserID, "stripeSubscriptionID", sub.StripeSubscriptionID)
			return fmt.Errorf("repository: %w: stripe subscription %s", ErrDuplicate, sub.StripeSubscriptionID)
		}
		r.log.Errorw("Failed to upsert subscription in DB", "error", err, "userID", sub.UserID, "stripeSubscriptionID", sub.StripeSubscriptionID)
		return fmt.Errorf("repository: failed to upsert subscription: %w", err)
	}

	r.log.Debugw("Successfully upserted subscription in DB", "userID", sub.UserID, "status", sub.Status)
	return nil
}

// GetByUserID возвращает подписку пользователя.
func (r *postgresSubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error) {
	return r.getOne(ctx, "user_id", userID)
}

// GetByStripeSubscriptionID возвращает подписку по ее Stripe ID.
func (r *postgresSubscriptionRepo) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error) {
	return r.getOne(ctx, "stripe_subscription_id", stripeSubscriptionID)
}

// GetByStripeCustomerID возвращает подписку по Stripe Customer ID.
func (r *postgresSubscriptionRepo) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.UserSubscription, error) {
	return r.getOne(ctx, "stripe_customer_id", stripeCustomerID)
}

// getOne выполняет выборку по одному столбцу; column задается только константами выше.
func (r *postgresSubscriptionRepo) getOne(ctx context.Context, column, value string) (*domain.UserSubscription, error) {
	if value == "" {
		return nil, domain.NewNotFoundError("subscription", value)
	}

	var sub domain.UserSubscription
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE ` + column + ` = $1 ORDER BY updated_at DESC LIMIT 1`

	err := r.db.GetContext(ctx, &sub, query, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("Subscription not found", "column", column, "value", value)
			return nil, domain.NewNotFoundError("subscription", value)
		}
		r.log.Errorw("Failed to get subscription from DB", "error", err, "column", column, "value", value)
		return nil, fmt.Errorf("repository: failed to get subscription by %s: %w", column, err)
	}
	return &sub, nil
}
