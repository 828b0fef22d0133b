package repository

import (
	"context"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием по user_id
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(
	repo SubscriptionRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Upsert пишет в БД и сбрасывает кеш; следующее чтение возьмет строку из БД со слиянием полей
func (r *CachedSubscriptionRepository) Upsert(ctx context.Context, sub *domain.UserSubscription) error {
	if err := r.repo.Upsert(ctx, sub); err != nil {
		return err
	}

	if err := r.cache.InvalidateSubscription(ctx, sub.UserID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache after upsert", "error", err, "userID", sub.UserID)
	}
	return nil
}

// GetByUserID получает подписку (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.UserSubscription, error) {
	cached, err := r.cache.GetCachedSubscription(ctx, userID)
	if err != nil {
		// Продолжаем выполнение при ошибке кеша
		r.log.Warnw("Error getting subscription from cache", "error", err, "userID", userID)
	}
	if cached != nil {
		r.log.Debugw("Subscription found in cache", "userID", userID)
		return cached, nil
	}

	sub, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "userID", userID)
	}
	return sub, nil
}

// GetByStripeSubscriptionID всегда идет в БД; ключ кеша строится только по user_id
func (r *CachedSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error) {
	return r.repo.GetByStripeSubscriptionID(ctx, stripeSubscriptionID)
}

// GetByStripeCustomerID всегда идет в БД
func (r *CachedSubscriptionRepository) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.UserSubscription, error) {
	return r.repo.GetByStripeCustomerID(ctx, stripeCustomerID)
}
