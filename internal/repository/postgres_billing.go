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

// postgresPaymentRepo реализует PaymentRepository для PostgreSQL.
type postgresPaymentRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresPaymentRepository создает репозиторий истории платежей.
func NewPostgresPaymentRepository(db *sqlx.DB, log *logger.Logger) PaymentRepository {
	return &postgresPaymentRepo{db: db, log: log}
}

// Record добавляет платеж; (stripe_invoice_id, status) служит естественным ключом.
func (r *postgresPaymentRepo) Record(ctx context.Context, p *domain.PaymentRecord) (bool, error) {
	query := `
        INSERT INTO payment_history (
            user_id, subscription_id, stripe_payment_intent_id, stripe_invoice_id,
            amount, currency, status, payment_method, description, receipt_url
        ) VALUES (
            :user_id, :subscription_id, :stripe_payment_intent_id, :stripe_invoice_id,
            :amount, :currency, :status, :payment_method, :description, :receipt_url
        )
        ON CONFLICT (stripe_invoice_id, status) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		r.log.Errorw("Failed to record payment", "error", err, "invoiceID", p.StripeInvoiceID, "userID", p.UserID)
		return false, fmt.Errorf("repository: failed to record payment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		r.log.Errorw("Failed to get rows affected after payment insert", "error", err, "invoiceID", p.StripeInvoiceID)
		return false, fmt.Errorf("repository: failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.log.Infow("Payment already recorded, skipping", "invoiceID", p.StripeInvoiceID, "status", p.Status)
		return false, nil
	}
	return true, nil
}

// ListByUserID возвращает последние платежи пользователя.
func (r *postgresPaymentRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	payments := []domain.PaymentRecord{}
	query := `
        SELECT id, user_id, subscription_id, stripe_payment_intent_id, stripe_invoice_id,
               amount, currency, status, payment_method, description, receipt_url, created_at
        FROM payment_history
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2`

	if err := r.db.SelectContext(ctx, &payments, query, userID, limit); err != nil {
		r.log.Errorw("Failed to list payments", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to list payments: %w", err)
	}
	return payments, nil
}

// postgresPlanRepo реализует PlanRepository для PostgreSQL.
type postgresPlanRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresPlanRepository создает репозиторий планов.
func NewPostgresPlanRepository(db *sqlx.DB, log *logger.Logger) PlanRepository {
	return &postgresPlanRepo{db: db, log: log}
}

// GetByPriceID ищет активный план по Stripe Price ID.
func (r *postgresPlanRepo) GetByPriceID(ctx context.Context, stripePriceID string) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	query := `SELECT id, name, tier, stripe_price_id, active FROM subscription_plans WHERE stripe_price_id = $1 AND active`

	if err := r.db.GetContext(ctx, &plan, query, stripePriceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: price %s", domain.ErrSubscriptionPlanNotFound, stripePriceID)
		}
		r.log.Errorw("Failed to get plan by price ID", "error", err, "priceID", stripePriceID)
		return nil, fmt.Errorf("repository: failed to get plan by price: %w", err)
	}
	return &plan, nil
}

// GetByID возвращает план по идентификатору.
func (r *postgresPlanRepo) GetByID(ctx context.Context, planID string) (*domain.SubscriptionPlan, error) {
	var plan domain.SubscriptionPlan
	query := `SELECT id, name, tier, stripe_price_id, active FROM subscription_plans WHERE id = $1`

	if err := r.db.GetContext(ctx, &plan, query, planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %s", domain.ErrSubscriptionPlanNotFound, planID)
		}
		return nil, fmt.Errorf("repository: failed to get plan: %w", err)
	}
	return &plan, nil
}

// List возвращает все планы.
func (r *postgresPlanRepo) List(ctx context.Context) ([]domain.SubscriptionPlan, error) {
	plans := []domain.SubscriptionPlan{}
	query := `SELECT id, name, tier, stripe_price_id, active FROM subscription_plans ORDER BY id`
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("repository: failed to list plans: %w", err)
	}
	return plans, nil
}

// Upsert создает или обновляет план.
func (r *postgresPlanRepo) Upsert(ctx context.Context, plan *domain.SubscriptionPlan) error {
	query := `
        INSERT INTO subscription_plans (id, name, tier, stripe_price_id, active)
        VALUES (:id, :name, :tier, :stripe_price_id, :active)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            tier = EXCLUDED.tier,
            stripe_price_id = EXCLUDED.stripe_price_id,
            active = EXCLUDED.active`

	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("repository: %w: price %s", ErrDuplicate, plan.StripePriceID)
		}
		return fmt.Errorf("repository: failed to upsert plan: %w", err)
	}
	return nil
}

// postgresWebhookEventRepo реализует WebhookEventRepository для PostgreSQL.
type postgresWebhookEventRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresWebhookEventRepository создает журнал обработанных событий.
func NewPostgresWebhookEventRepository(db *sqlx.DB, log *logger.Logger) WebhookEventRepository {
	return &postgresWebhookEventRepo{db: db, log: log}
}

// IsProcessed проверяет, обрабатывалось ли событие.
func (r *postgresWebhookEventRepo) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM stripe_events WHERE event_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, eventID); err != nil {
		r.log.Errorw("Failed to check processed webhook event", "error", err, "eventID", eventID)
		return false, fmt.Errorf("repository: failed to check event: %w", err)
	}
	return exists, nil
}

// MarkProcessed записывает событие как обработанное.
func (r *postgresWebhookEventRepo) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	query := `INSERT INTO stripe_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, eventID, eventType); err != nil {
		r.log.Errorw("Failed to mark webhook event processed", "error", err, "eventID", eventID)
		return fmt.Errorf("repository: failed to mark event: %w", err)
	}
	return nil
}
