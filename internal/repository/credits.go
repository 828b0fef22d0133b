package repository

import (
	"context"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
)

// CreditsRepository хранилище балансов и журнала использования кредитов.
type CreditsRepository interface {
	// Get возвращает строку баланса или ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.UserCredits, error)

	// Provision создает строку, если ее нет, и возвращает актуальную.
	// Повторные и конкурентные вызовы не создают дубликатов.
	Provision(ctx context.Context, userID string, tier domain.Tier, total int, resetAt time.Time) (*domain.UserCredits, error)

	// ResetIfDue обнуляет credits_used, если credits_reset_at < now,
	// и возвращает строку в любом случае.
	ResetIfDue(ctx context.Context, userID string, now, nextResetAt time.Time) (*domain.UserCredits, error)

	// Reset безусловно обнуляет период пользователя.
	Reset(ctx context.Context, userID string, nextResetAt time.Time) (*domain.UserCredits, error)

	// Consume атомарно списывает usage.CreditsUsed и пишет журнал в одной транзакции.
	// Если баланса не хватает, возвращает domain.ErrInsufficientCredits без изменений.
	Consume(ctx context.Context, usage *domain.CreditUsage) (*domain.UserCredits, error)

	// SetTier меняет уровень и лимит, сохраняя credits_used; создает строку при отсутствии.
	SetTier(ctx context.Context, userID string, tier domain.Tier, total int, resetAt time.Time) (*domain.UserCredits, error)

	// ListUsage возвращает последние записи журнала пользователя.
	ListUsage(ctx context.Context, userID string, limit int) ([]domain.CreditUsage, error)

	// ResetExpired сбрасывает все истекшие периоды и возвращает число строк.
	ResetExpired(ctx context.Context, now, nextResetAt time.Time) (int64, error)

	// Stats считает строки по уровням: всего, с истекшим периодом и без остатка.
	Stats(ctx context.Context, now time.Time) ([]domain.TierStats, error)
}
