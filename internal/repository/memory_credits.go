package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

// InMemoryCreditsRepository реализация репозитория кредитов в памяти.
// Мьютекс дает те же гарантии атомарности, что и условный UPDATE в PostgreSQL.
type InMemoryCreditsRepository struct {
	credits map[string]domain.UserCredits
	usage   []domain.CreditUsage
	nextID  int64
	mutex   sync.RWMutex
	log     *logger.Logger
	now     func() time.Time
}

// NewInMemoryCreditsRepository создает новый репозиторий кредитов в памяти
func NewInMemoryCreditsRepository(log *logger.Logger) *InMemoryCreditsRepository {
	return &InMemoryCreditsRepository{
		credits: make(map[string]domain.UserCredits),
		log:     log,
		now:     time.Now,
	}
}

// Get возвращает копию строки баланса
func (r *InMemoryCreditsRepository) Get(ctx context.Context, userID string) (*domain.UserCredits, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	uc, ok := r.credits[userID]
	if !ok {
		return nil, domain.NewNotFoundError("user_credits", userID)
	}
	return &uc, nil
}

// Provision создает строку, если ее нет
func (r *InMemoryCreditsRepository) Provision(ctx context.Context, userID string, tier domain.Tier, total int, resetAt time.Time) (*domain.UserCredits, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	uc, ok := r.credits[userID]
	if !ok {
		now := r.now()
		uc = domain.UserCredits{
			UserID:         userID,
			Tier:           tier,
			CreditsTotal:   total,
			CreditsResetAt: resetAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		r.credits[userID] = uc
		r.log.Infow("Provisioned user credits", "userID", userID, "tier", tier, "creditsTotal", total)
	}
	return &uc, nil
}

// ResetIfDue сбрасывает период, если он истек
func (r *InMemoryCreditsRepository) ResetIfDue(ctx context.Context, userID string, now, nextResetAt time.Time) (*domain.UserCredits, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	uc, ok := r.credits[userID]
	if !ok {
		return nil, domain.NewNotFoundError("user_credits", userID)
	}
	if uc.CreditsResetAt.Before(now) {
		uc.CreditsUsed = 0
		uc.CreditsResetAt = nextResetAt
		uc.UpdatedAt = r.now()
		r.credits[userID] = uc
	}
	return &uc, nil
}

// Reset безусловно сбрасывает период
func (r *InMemoryCreditsRepository) Reset(ctx context.Context, userID string, nextResetAt time.Time) (*domain.UserCredits, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	uc, ok := r.credits[userID]
	if !ok {
		return nil, domain.NewNotFoundError("user_credits", userID)
	}
	uc.CreditsUsed = 0
	uc.CreditsResetAt = nextResetAt
	uc.UpdatedAt = r.now()
	r.credits[userID] = uc
	return &uc, nil
}

// Consume списывает кредиты и пишет журнал под одной блокировкой
func (r *InMemoryCreditsRepository) Consume(ctx context.Context, usage *domain.CreditUsage) (*domain.UserCredits, error) {
	if usage.CreditsUsed <= 0 {
		return nil, fmt.Errorf("%w: credits to consume must be positive", domain.ErrInvalidInput)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	uc, ok := r.credits[usage.UserID]
	if !ok || uc.CreditsUsed+usage.CreditsUsed > uc.CreditsTotal {
		return nil, domain.ErrInsufficientCredits
	}

	now := r.now()
	uc.CreditsUsed += usage.CreditsUsed
	uc.UpdatedAt = now
	r.credits[usage.UserID] = uc

	r.nextID++
	usage.ID = r.nextID
	usage.CreatedAt = now
	r.usage = append(r.usage, *usage)

	return &uc, nil
}

// SetTier меняет уровень, создавая строку при отсутствии
func (r *InMemoryCreditsRepository) SetTier(ctx context.Context, userID string, tier domain.Tier, total int, resetAt time.Time) (*domain.UserCredits, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	uc, ok := r.credits[userID]
	if !ok {
		uc = domain.UserCredits{UserID: userID, CreditsResetAt: resetAt, CreatedAt: now}
	}
	uc.Tier = tier
	uc.CreditsTotal = total
	uc.UpdatedAt = now
	r.credits[userID] = uc
	return &uc, nil
}

// ListUsage возвращает записи журнала от новых к старым
func (r *InMemoryCreditsRepository) ListUsage(ctx context.Context, userID string, limit int) ([]domain.CreditUsage, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := []domain.CreditUsage{}
	for _, u := range r.usage {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResetExpired сбрасывает все истекшие периоды
func (r *InMemoryCreditsRepository) ResetExpired(ctx context.Context, now, nextResetAt time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var n int64
	for id, uc := range r.credits {
		if uc.CreditsResetAt.Before(now) {
			uc.CreditsUsed = 0
			uc.CreditsResetAt = nextResetAt
			uc.UpdatedAt = r.now()
			r.credits[id] = uc
			n++
		}
	}
	return n, nil
}

// Stats агрегирует балансы по уровням
func (r *InMemoryCreditsRepository) Stats(ctx context.Context, now time.Time) ([]domain.TierStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	byTier := make(map[domain.Tier]*domain.TierStats)
	for _, uc := range r.credits {
		st, ok := byTier[uc.Tier]
		if !ok {
			st = &domain.TierStats{Tier: uc.Tier}
			byTier[uc.Tier] = st
		}
		st.Accounts++
		if uc.CreditsResetAt.Before(now) {
			st.DueForReset++
		}
		if uc.CreditsUsed >= uc.CreditsTotal {
			st.Exhausted++
		}
	}

	out := make([]domain.TierStats, 0, len(byTier))
	for _, st := range byTier {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

// Count возвращает число строк баланса
func (r *InMemoryCreditsRepository) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.credits)
}

// Put перезаписывает строку баланса (для тестов и dev-окружения)
func (r *InMemoryCreditsRepository) Put(uc domain.UserCredits) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.credits[uc.UserID] = uc
}
