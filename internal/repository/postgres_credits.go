package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const creditsColumns = `user_id, tier, credits_total, credits_used, credits_reset_at, created_at, updated_at`

// postgresCreditsRepo реализует CreditsRepository для PostgreSQL.
type postgresCreditsRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresCreditsRepository создает новый экземпляр репозитория кредитов для PostgreSQL.
func NewPostgresCreditsRepository(db *sqlx.DB, log *logger.Logger) CreditsRepository {
	return &postgresCreditsRepo{
		db:  db,
		log: log,
	}
}

// Get возвращает строку баланса пользователя.
func (r *postgresCreditsRepo) Get(ctx context.Context, userID string) (*domain.UserCredits, error) {
	var uc domain.UserCredits
	query := `SELECT ` + creditsColumns + ` FROM user_credits WHERE user_id = $1`

	if err := r.db.GetContext(ctx, &uc, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("user_credits", userID)
		}
		r.log.Errorw("Failed to get user credits from DB", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to get user credits: %w", err)
	}
	return &uc, nil
}

// Provision создает строку баланса; при конфликте существующая строка не меняется.
func (r *postgresCreditsRepo) Provision(ctx context.Context, userID string, tier domain.Tier, total int, resetAt time.Time) (*domain.UserCredits, error) {
	query := `
        INSERT INTO user_credits (user_id, tier, credits_total, credits_used, credits_reset_at)
        VALUES ($1, $2, $3, 0, $4)
        ON CONFLICT (user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, userID, tier, total, resetAt)
	if err != nil {
		r.log.Errorw("Failed to provision user credits", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to provision user credits: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		r.log.Infow("Provisioned user credits", "userID", userID, "tier", tier, "creditsTotal", total)
	}

	return r.Get(ctx, userID)
}

// ResetIfDue обнуляет период, только если он истек; иначе возвращает текущую строку.
func (r *postgresCreditsRepo) ResetIfDue(ctx context.Context, userID string, now, nextResetAt time.Time) (*domain.UserCredits, error) {
	var uc domain.UserCredits
	query := `
        UPDATE user_credits
        SET credits_used = 0, credits_reset_at = $3, updated_at = now()
        WHERE user_id = $1 AND credits_reset_at < $2
        RETURNING ` + creditsColumns

	err := r.db.GetContext(ctx, &uc, query, userID, now, nextResetAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Период не истек или его уже сбросил конкурентный запрос
			return r.Get(ctx, userID)
		}
		r.log.Errorw("Failed to reset user credits", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to reset user credits: %w", err)
	}

	r.log.Infow("Credit period reset", "userID", userID, "nextResetAt", nextResetAt)
	return &uc, nil
}

// Reset безусловно обнуляет период пользователя.
func (r *postgresCreditsRepo) Reset(ctx context.Context, userID string, nextResetAt time.Time) (*domain.UserCredits, error) {
	var uc domain.UserCredits
	query := `
        UPDATE user_credits
        SET credits_used = 0, credits_reset_at = $2, updated_at = now()
        WHERE user_id = $1
        RETURNING ` + creditsColumns

	if err := r.db.GetContext(ctx, &uc, query, userID, nextResetAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("user_credits", userID)
		}
		return nil, fmt.Errorf("repository: failed to reset user credits: %w", err)
	}
	return &uc, nil
}

// Consume выполняет условное списание и запись в журнал в одной транзакции.
func (r *postgresCreditsRepo) Consume(ctx context.Context, usage *domain.CreditUsage) (*domain.UserCredits, error) {
	if usage.CreditsUsed <= 0 {
		return nil, fmt.Errorf("%w: credits to consume must be positive", domain.ErrInvalidInput)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.log.Errorw("Failed to begin transaction", "error", err)
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer tx.Rollback() // после Commit возвращает sql.ErrTxDone

	var uc domain.UserCredits
	update := `
        UPDATE user_credits
        SET credits_used = credits_used + $2, updated_at = now()
        WHERE user_id = $1 AND credits_used + $2 <= credits_total
        RETURNING ` + creditsColumns

	if err := tx.GetContext(ctx, &uc, update, usage.UserID, usage.CreditsUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("Conditional credit update affected 0 rows", "userID", usage.UserID, "required", usage.CreditsUsed)
			return nil, domain.ErrInsufficientCredits
		}
		r.log.Errorw("Failed to deduct credits", "error", err, "userID", usage.UserID)
		return nil, fmt.Errorf("repository: failed to deduct credits: %w", err)
	}

	insert := `
        INSERT INTO credit_usage_log (user_id, action, credits_used, metadata)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`

	row := tx.QueryRowxContext(ctx, insert, usage.UserID, usage.Action, usage.CreditsUsed, usage.Metadata)
	if err := row.Scan(&usage.ID, &usage.CreatedAt); err != nil {
		r.log.Errorw("Failed to append credit usage log", "error", err, "userID", usage.UserID)
		return nil, fmt.Errorf("repository: failed to append usage log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		r.log.Errorw("Failed to commit credit deduction", "error", err, "userID", usage.UserID)
		return nil, fmt.Errorf("repository: failed to commit credit deduction: %w", err)
	}

	r.log.Debugw("Credits consumed", "userID", usage.UserID, "action", usage.Action, "amount", usage.CreditsUsed, "creditsUsed", uc.CreditsUsed)
	return &uc, nil
}

// SetTier меняет уровень пользователя, создавая строку при необходимости.
func (r *postgresCreditsRepo) SetTier(ctx context.Context, userID string, tier domain.Tier, total int, resetAt time.Time) (*domain.UserCredits, error) {
	var uc domain.UserCredits
	query := `
        INSERT INTO user_credits (user_id, tier, credits_total, credits_used, credits_reset_at)
        VALUES ($1, $2, $3, 0, $4)
        ON CONFLICT (user_id) DO UPDATE SET
            tier = EXCLUDED.tier,
            credits_total = EXCLUDED.credits_total,
            updated_at = now()
        RETURNING ` + creditsColumns

	if err := r.db.GetContext(ctx, &uc, query, userID, tier, total, resetAt); err != nil {
		r.log.Errorw("Failed to set user tier", "error", err, "userID", userID, "tier", tier)
		return nil, fmt.Errorf("repository: failed to set tier: %w", err)
	}
	return &uc, nil
}

// ListUsage возвращает последние записи журнала.
func (r *postgresCreditsRepo) ListUsage(ctx context.Context, userID string, limit int) ([]domain.CreditUsage, error) {
	if limit <= 0 {
		limit = 50
	}
	usage := []domain.CreditUsage{}
	query := `
        SELECT id, user_id, action, credits_used, metadata, created_at
        FROM credit_usage_log
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`

	if err := r.db.SelectContext(ctx, &usage, query, userID, limit); err != nil {
		r.log.Errorw("Failed to list credit usage", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to list usage: %w", err)
	}
	return usage, nil
}

// ResetExpired сбрасывает все периоды, истекшие к моменту now.
func (r *postgresCreditsRepo) ResetExpired(ctx context.Context, now, nextResetAt time.Time) (int64, error) {
	query := `
        UPDATE user_credits
        SET credits_used = 0, credits_reset_at = $2, updated_at = now()
        WHERE credits_reset_at < $1`

	result, err := r.db.ExecContext(ctx, query, now, nextResetAt)
	if err != nil {
		r.log.Errorw("Failed to reset expired credit periods", "error", err)
		return 0, fmt.Errorf("repository: failed to reset expired periods: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: failed to get rows affected: %w", err)
	}
	return n, nil
}

// Stats агрегирует user_credits по уровням.
func (r *postgresCreditsRepo) Stats(ctx context.Context, now time.Time) ([]domain.TierStats, error) {
	query := `
        SELECT tier,
               COUNT(*) AS accounts,
               COUNT(*) FILTER (WHERE credits_reset_at < $1) AS due_for_reset,
               COUNT(*) FILTER (WHERE credits_used >= credits_total) AS exhausted
        FROM user_credits
        GROUP BY tier
        ORDER BY tier`

	var stats []domain.TierStats
	if err := r.db.SelectContext(ctx, &stats, query, now); err != nil {
		return nil, fmt.Errorf("repository: failed to collect credit stats: %w", err)
	}
	return stats, nil
}
