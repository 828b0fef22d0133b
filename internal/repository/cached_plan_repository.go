package repository

import (
	"context"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedPlanRepository держит в памяти соответствие price → plan.
// Справочник меняется редко, поэтому достаточно TTL без явной инвалидации между репликами.
type CachedPlanRepository struct {
	repo    PlanRepository
	byPrice *expirable.LRU[string, domain.SubscriptionPlan]
}

// NewCachedPlanRepository создает кеш размера size с временем жизни ttl
func NewCachedPlanRepository(repo PlanRepository, size int, ttl time.Duration) *CachedPlanRepository {
	if size <= 0 {
		size = 128
	}
	return &CachedPlanRepository{
		repo:    repo,
		byPrice: expirable.NewLRU[string, domain.SubscriptionPlan](size, nil, ttl),
	}
}

// GetByPriceID отдает план из кеша; промахи и ошибки не кешируются
func (r *CachedPlanRepository) GetByPriceID(ctx context.Context, stripePriceID string) (*domain.SubscriptionPlan, error) {
	if plan, ok := r.byPrice.Get(stripePriceID); ok {
		return &plan, nil
	}
	plan, err := r.repo.GetByPriceID(ctx, stripePriceID)
	if err != nil {
		return nil, err
	}
	r.byPrice.Add(stripePriceID, *plan)
	return plan, nil
}

// GetByID идет в хранилище
func (r *CachedPlanRepository) GetByID(ctx context.Context, planID string) (*domain.SubscriptionPlan, error) {
	return r.repo.GetByID(ctx, planID)
}

// List идет в хранилище
func (r *CachedPlanRepository) List(ctx context.Context) ([]domain.SubscriptionPlan, error) {
	return r.repo.List(ctx)
}

// Upsert сохраняет план и очищает кеш
func (r *CachedPlanRepository) Upsert(ctx context.Context, plan *domain.SubscriptionPlan) error {
	if err := r.repo.Upsert(ctx, plan); err != nil {
		return err
	}
	r.byPrice.Purge()
	return nil
}
