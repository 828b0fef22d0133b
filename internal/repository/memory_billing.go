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

// InMemorySubscriptionRepository реализация репозитория подписок в памяти
type InMemorySubscriptionRepository struct {
	subs  map[string]domain.UserSubscription
	mutex sync.RWMutex
	log   *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[string]domain.UserSubscription),
		log:  log,
	}
}

// Upsert повторяет правила слияния SQL-версии
func (r *InMemorySubscriptionRepository) Upsert(ctx context.Context, sub *domain.UserSubscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if sub.StripeSubscriptionID != "" {
		for uid, s := range r.subs {
			if uid != sub.UserID && s.StripeSubscriptionID == sub.StripeSubscriptionID {
				return fmt.Errorf("repository: %w: stripe subscription %s", ErrDuplicate, sub.StripeSubscriptionID)
			}
		}
	}

	now := time.Now().UTC()
	existing, ok := r.subs[sub.UserID]
	if !ok {
		row := *sub
		row.CreatedAt = now
		row.UpdatedAt = now
		r.subs[sub.UserID] = row
		return nil
	}

	if sub.PlanID != "" {
		existing.PlanID = sub.PlanID
	}
	if sub.StripeCustomerID != "" {
		existing.StripeCustomerID = sub.StripeCustomerID
	}
	if sub.StripeSubscriptionID != "" {
		existing.StripeSubscriptionID = sub.StripeSubscriptionID
	}
	if sub.CurrentPeriodStart != nil {
		existing.CurrentPeriodStart = sub.CurrentPeriodStart
	}
	if sub.CurrentPeriodEnd != nil {
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
	}
	existing.Status = sub.Status
	existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	existing.CanceledAt = sub.CanceledAt
	existing.UpdatedAt = now
	r.subs[sub.UserID] = existing
	return nil
}

// GetByUserID возвращает подписку пользователя
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.subs[userID]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", userID)
	}
	return &s, nil
}

// GetByStripeSubscriptionID ищет подписку по Stripe ID
func (r *InMemorySubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error) {
	return r.find(stripeSubscriptionID, func(s domain.UserSubscription) string { return s.StripeSubscriptionID })
}

// GetByStripeCustomerID ищет подписку по Stripe Customer ID
func (r *InMemorySubscriptionRepository) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.UserSubscription, error) {
	return r.find(stripeCustomerID, func(s domain.UserSubscription) string { return s.StripeCustomerID })
}

func (r *InMemorySubscriptionRepository) find(value string, field func(domain.UserSubscription) string) (*domain.UserSubscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if value != "" {
		for _, s := range r.subs {
			if field(s) == value {
				found := s
				return &found, nil
			}
		}
	}
	return nil, domain.NewNotFoundError("subscription", value)
}

// InMemoryPaymentRepository история платежей в памяти
type InMemoryPaymentRepository struct {
	payments []domain.PaymentRecord
	nextID   int64
	mutex    sync.Mutex
}

// NewInMemoryPaymentRepository создает репозиторий платежей в памяти
func NewInMemoryPaymentRepository() *InMemoryPaymentRepository {
	return &InMemoryPaymentRepository{}
}

// Record добавляет платеж, если пары (invoice, status) еще нет
func (r *InMemoryPaymentRepository) Record(ctx context.Context, p *domain.PaymentRecord) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.payments {
		if existing.StripeInvoiceID == p.StripeInvoiceID && existing.Status == p.Status {
			return false, nil
		}
	}
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now().UTC()
	r.payments = append(r.payments, *p)
	return true, nil
}

// ListByUserID возвращает платежи пользователя от новых к старым
func (r *InMemoryPaymentRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]domain.PaymentRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if limit <= 0 {
		limit = 20
	}
	out := []domain.PaymentRecord{}
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InMemoryPlanRepository справочник планов в памяти
type InMemoryPlanRepository struct {
	plans map[string]domain.SubscriptionPlan
	mutex sync.RWMutex
}

// NewInMemoryPlanRepository создает справочник с начальными планами
func NewInMemoryPlanRepository(plans ...domain.SubscriptionPlan) *InMemoryPlanRepository {
	r := &InMemoryPlanRepository{plans: make(map[string]domain.SubscriptionPlan)}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

// GetByPriceID ищет активный план по цене
func (r *InMemoryPlanRepository) GetByPriceID(ctx context.Context, stripePriceID string) (*domain.SubscriptionPlan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, p := range r.plans {
		if p.StripePriceID == stripePriceID && p.Active {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: price %s", domain.ErrSubscriptionPlanNotFound, stripePriceID)
}

// GetByID возвращает план по идентификатору
func (r *InMemoryPlanRepository) GetByID(ctx context.Context, planID string) (*domain.SubscriptionPlan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", domain.ErrSubscriptionPlanNotFound, planID)
	}
	return &p, nil
}

// List возвращает планы, упорядоченные по id
func (r *InMemoryPlanRepository) List(ctx context.Context) ([]domain.SubscriptionPlan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]domain.SubscriptionPlan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert создает или заменяет план
func (r *InMemoryPlanRepository) Upsert(ctx context.Context, plan *domain.SubscriptionPlan) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, p := range r.plans {
		if id != plan.ID && p.StripePriceID == plan.StripePriceID {
			return fmt.Errorf("repository: %w: price %s", ErrDuplicate, plan.StripePriceID)
		}
	}
	r.plans[plan.ID] = *plan
	return nil
}

// InMemoryWebhookEventRepository журнал событий в памяти
type InMemoryWebhookEventRepository struct {
	events map[string]string
	mutex  sync.RWMutex
}

// NewInMemoryWebhookEventRepository создает журнал событий в памяти
func NewInMemoryWebhookEventRepository() *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{events: make(map[string]string)}
}

// IsProcessed проверяет, записано ли событие
func (r *InMemoryWebhookEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.events[eventID]
	return ok, nil
}

// MarkProcessed записывает событие
func (r *InMemoryWebhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events[eventID] = eventType
	return nil
}
