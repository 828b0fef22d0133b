package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/credits"
	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/metrics"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
)

// Исходы обработки доставки для метрик
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

const publishTimeout = 5 * time.Second

// SubscriptionPublisher получает событие после каждой примененной смены подписки.
type SubscriptionPublisher interface {
	PublishSubscription(ctx context.Context, event domain.SubscriptionEvent) error
}

// ReconcilerDeps хранилища и сервисы, которыми пользуется Reconciler.
type ReconcilerDeps struct {
	Subscriptions repository.SubscriptionRepository
	Plans         repository.PlanRepository
	Payments      repository.PaymentRepository
	Events        repository.WebhookEventRepository
	Credits       repository.CreditsRepository
	Publisher     SubscriptionPublisher
	Metrics       metrics.CreditMetrics
}

// Reconciler применяет вебхуки Stripe к подпискам, платежам и уровням кредитов.
type Reconciler struct {
	secret string
	deps   ReconcilerDeps
	log    *logger.Logger
	now    func() time.Time
}

// NewReconciler создает обработчик вебхуков Stripe.
func NewReconciler(secret string, deps ReconcilerDeps, log *logger.Logger) *Reconciler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNopCreditMetrics()
	}
	return &Reconciler{
		secret: secret,
		deps:   deps,
		log:    log.Named("stripe_webhook"),
		now:    time.Now,
	}
}

// Process проверяет подпись и применяет событие. Возвращенная ошибка
// означает, что Stripe должен повторить доставку (кроме ErrInvalidSignature
// и ErrConfiguration).
func (r *Reconciler) Process(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := VerifyEvent(payload, sigHeader, r.secret)
	if err != nil {
		r.log.Warnw("Webhook signature verification failed", "error", err)
		return err
	}
	eventType := string(event.Type)
	r.log.Infow("Received verified Stripe event", "eventID", event.ID, "eventType", eventType)

	processed, err := r.deps.Events.IsProcessed(ctx, event.ID)
	if err != nil {
		r.deps.Metrics.IncWebhookEvent(eventType, outcomeFailed)
		return fmt.Errorf("reconciler: check event %s: %w", event.ID, err)
	}
	if processed {
		r.log.Infow("Stripe event already processed, skipping", "eventID", event.ID, "eventType", eventType)
		r.deps.Metrics.IncWebhookEvent(eventType, outcomeDuplicate)
		return nil
	}

	handled, err := r.dispatch(ctx, event)
	if err != nil {
		r.log.Errorw("Error processing webhook event", "error", err, "eventID", event.ID, "eventType", eventType)
		r.deps.Metrics.IncWebhookEvent(eventType, outcomeFailed)
		return err
	}

	if err := r.deps.Events.MarkProcessed(ctx, event.ID, eventType); err != nil {
		r.deps.Metrics.IncWebhookEvent(eventType, outcomeFailed)
		return fmt.Errorf("reconciler: mark event %s: %w", event.ID, err)
	}

	outcome := outcomeProcessed
	if !handled {
		outcome = outcomeIgnored
	}
	r.deps.Metrics.IncWebhookEvent(eventType, outcome)
	r.log.Infow("Successfully processed webhook event", "eventID", event.ID, "eventType", eventType, "outcome", outcome)
	return nil
}

// dispatch возвращает false для типов событий, которые сервис не обрабатывает.
func (r *Reconciler) dispatch(ctx context.Context, event stripe.Event) (bool, error) {
	eventType := string(event.Type)
	switch eventType {
	case domain.EventCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return true, fmt.Errorf("reconciler: parse checkout session: %w", err)
		}
		return true, r.handleCheckoutCompleted(ctx, eventType, &sess)

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return true, fmt.Errorf("reconciler: parse subscription: %w", err)
		}
		return true, r.handleSubscriptionChange(ctx, eventType, &sub)

	case domain.EventInvoicePaymentSucceeded, domain.EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return true, fmt.Errorf("reconciler: parse invoice: %w", err)
		}
		return true, r.handleInvoice(ctx, eventType, &inv)

	default:
		r.log.Infow("Ignored webhook event type", "eventType", eventType, "eventID", event.ID)
		return false, nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, source string, sess *stripe.CheckoutSession) error {
	userID := sess.Metadata[metadataUserIDKey]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	if userID == "" {
		r.log.Warnw("Checkout session without user id, skipping", "sessionID", sess.ID)
		return nil
	}

	priceID := sess.Metadata[metadataPriceIDKey]
	plan, err := r.planByPrice(ctx, priceID)
	if err != nil {
		return err
	}
	if plan == nil {
		r.log.Warnw("Checkout session references unknown price, skipping", "sessionID", sess.ID, "priceID", priceID, "userID", userID)
		return nil
	}

	sub := &domain.UserSubscription{
		UserID: userID,
		PlanID: plan.ID,
		Status: domain.SubscriptionStatusActive,
	}
	if sess.Customer != nil {
		sub.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		sub.StripeSubscriptionID = sess.Subscription.ID
	}
	if err := r.deps.Subscriptions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("reconciler: upsert subscription for checkout: %w", err)
	}
	return r.resync(ctx, userID, source)
}

func (r *Reconciler) handleSubscriptionChange(ctx context.Context, source string, s *stripe.Subscription) error {
	customerID := ""
	if s.Customer != nil {
		customerID = s.Customer.ID
	}

	userID, err := r.resolveUser(ctx, s.Metadata[metadataUserIDKey], s.ID, customerID)
	if err != nil {
		return err
	}
	if userID == "" {
		r.log.Warnw("Cannot resolve user for subscription, skipping", "subscriptionID", s.ID, "customerID", customerID, "eventType", source)
		return nil
	}

	sub := &domain.UserSubscription{
		UserID:               userID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: s.ID,
		Status:               domain.SubscriptionStatus(s.Status),
		CurrentPeriodStart:   unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		CanceledAt:           unixTime(s.CanceledAt),
	}

	// неизвестная цена оставляет сохраненный план
	if priceID := firstPriceID(s); priceID != "" {
		plan, err := r.planByPrice(ctx, priceID)
		if err != nil {
			return err
		}
		if plan != nil {
			sub.PlanID = plan.ID
		} else {
			r.log.Warnw("Subscription references unknown price", "subscriptionID", s.ID, "priceID", priceID)
		}
	}

	if source == domain.EventSubscriptionDeleted {
		sub.Status = domain.SubscriptionStatusCanceled
		if sub.CanceledAt == nil {
			now := r.now().UTC()
			sub.CanceledAt = &now
		}
	}

	if err := r.deps.Subscriptions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("reconciler: upsert subscription %s: %w", s.ID, err)
	}
	return r.resync(ctx, userID, source)
}

func (r *Reconciler) handleInvoice(ctx context.Context, source string, inv *stripe.Invoice) error {
	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}
	subscriptionID := ""
	if inv.Subscription != nil {
		subscriptionID = inv.Subscription.ID
	}

	userID, err := r.resolveUser(ctx, inv.Metadata[metadataUserIDKey], subscriptionID, customerID)
	if err != nil {
		return err
	}
	if userID == "" {
		r.log.Warnw("Cannot resolve user for invoice, skipping", "invoiceID", inv.ID, "subscriptionID", subscriptionID, "customerID", customerID)
		return nil
	}

	status := domain.PaymentStatusSucceeded
	subStatus := domain.SubscriptionStatusActive
	amount := inv.AmountPaid
	if source == domain.EventInvoicePaymentFailed {
		status = domain.PaymentStatusFailed
		subStatus = domain.SubscriptionStatusPastDue
		amount = inv.AmountDue
	}

	payment := &domain.PaymentRecord{
		UserID:          userID,
		SubscriptionID:  subscriptionID,
		StripeInvoiceID: inv.ID,
		Amount:          amount,
		Currency:        string(inv.Currency),
		Status:          status,
		Description:     inv.Description,
		ReceiptURL:      inv.HostedInvoiceURL,
	}
	if inv.PaymentIntent != nil {
		payment.StripePaymentIntentID = inv.PaymentIntent.ID
	}
	inserted, err := r.deps.Payments.Record(ctx, payment)
	if err != nil {
		return fmt.Errorf("reconciler: record payment for invoice %s: %w", inv.ID, err)
	}
	if !inserted {
		r.log.Infow("Payment already recorded", "invoiceID", inv.ID, "status", status)
	}

	// Статус подписки меняется, только если она отслеживается
	if subscriptionID == "" {
		return nil
	}
	sub := &domain.UserSubscription{
		UserID:               userID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		Status:               subStatus,
	}
	if existing, err := r.deps.Subscriptions.GetByUserID(ctx, userID); err == nil {
		sub.CancelAtPeriodEnd = existing.CancelAtPeriodEnd
		sub.CanceledAt = existing.CanceledAt
		// запоздавший счет не возвращает отмененную подписку
		if existing.Status == domain.SubscriptionStatusCanceled && existing.StripeSubscriptionID == subscriptionID {
			r.log.Infow("Invoice for canceled subscription, keeping status", "invoiceID", inv.ID, "subscriptionID", subscriptionID)
			sub.Status = domain.SubscriptionStatusCanceled
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("reconciler: load subscription for invoice %s: %w", inv.ID, err)
	}
	if err := r.deps.Subscriptions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("reconciler: update subscription status for invoice %s: %w", inv.ID, err)
	}
	return r.resync(ctx, userID, source)
}

// resolveUser ищет пользователя по метаданным, затем по ID подписки и клиента.
// Пустой результат без ошибки означает, что пользователь неизвестен.
func (r *Reconciler) resolveUser(ctx context.Context, metadataUserID, subscriptionID, customerID string) (string, error) {
	if metadataUserID != "" {
		return metadataUserID, nil
	}
	if subscriptionID != "" {
		sub, err := r.deps.Subscriptions.GetByStripeSubscriptionID(ctx, subscriptionID)
		if err == nil {
			return sub.UserID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("reconciler: lookup by subscription %s: %w", subscriptionID, err)
		}
	}
	if customerID != "" {
		sub, err := r.deps.Subscriptions.GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return sub.UserID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("reconciler: lookup by customer %s: %w", customerID, err)
		}
	}
	return "", nil
}

// planByPrice возвращает nil без ошибки для неизвестной цены.
func (r *Reconciler) planByPrice(ctx context.Context, priceID string) (*domain.SubscriptionPlan, error) {
	if priceID == "" {
		return nil, nil
	}
	plan, err := r.deps.Plans.GetByPriceID(ctx, priceID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionPlanNotFound) || errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reconciler: lookup plan for price %s: %w", priceID, err)
	}
	return plan, nil
}

// resync приводит уровень кредитов к сохраненной подписке. Лимит следует
// за уровнем, credits_used не меняется.
func (r *Reconciler) resync(ctx context.Context, userID, source string) error {
	sub, err := r.deps.Subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("reconciler: reload subscription: %w", err)
	}

	tier := domain.TierFree
	if sub.Status.Entitled() && sub.PlanID != "" {
		plan, err := r.deps.Plans.GetByID(ctx, sub.PlanID)
		switch {
		case err == nil:
			tier = plan.Tier
		case errors.Is(err, domain.ErrSubscriptionPlanNotFound), errors.Is(err, repository.ErrNotFound):
			r.log.Warnw("Subscription plan is missing, falling back to free tier", "planID", sub.PlanID, "userID", userID)
		default:
			return fmt.Errorf("reconciler: load plan %s: %w", sub.PlanID, err)
		}
	}

	previous := domain.TierFree
	if current, err := r.deps.Credits.Get(ctx, userID); err == nil {
		previous = current.Tier
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("reconciler: load credits: %w", err)
	}

	now := r.now().UTC()
	if _, err := r.deps.Credits.SetTier(ctx, userID, tier, credits.Limit(tier), credits.NextReset(now)); err != nil {
		return fmt.Errorf("reconciler: set tier: %w", err)
	}
	if previous != tier {
		r.deps.Metrics.IncTierChange(string(previous), string(tier))
		r.log.Infow("User tier changed", "userID", userID, "from", previous, "to", tier, "source", source)
	}

	r.publish(domain.SubscriptionEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		PlanID:     sub.PlanID,
		Status:     sub.Status,
		Tier:       tier,
		Source:     source,
		OccurredAt: now,
	})
	return nil
}

func (r *Reconciler) publish(event domain.SubscriptionEvent) {
	if r.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.deps.Publisher.PublishSubscription(ctx, event); err != nil {
		r.log.Warnw("Failed to publish subscription event", "error", err, "userID", event.UserID, "source", event.Source)
	}
}

func firstPriceID(s *stripe.Subscription) string {
	if s.Items == nil {
		return ""
	}
	for _, item := range s.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
