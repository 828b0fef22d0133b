package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/metrics"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testSecret = "whsec_test"

type recordedMetrics struct {
	metrics.CreditMetrics
	mu          sync.Mutex
	outcomes    []string
	tierChanges []string
}

func (m *recordedMetrics) IncWebhookEvent(eventType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, eventType+":"+outcome)
}

func (m *recordedMetrics) IncTierChange(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tierChanges = append(m.tierChanges, from+"->"+to)
}

type capturePublisher struct {
	events []domain.SubscriptionEvent
}

func (p *capturePublisher) PublishSubscription(ctx context.Context, event domain.SubscriptionEvent) error {
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	rec       *Reconciler
	subs      *repository.InMemorySubscriptionRepository
	payments  *repository.InMemoryPaymentRepository
	events    *repository.InMemoryWebhookEventRepository
	credits   *repository.InMemoryCreditsRepository
	metrics   *recordedMetrics
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()
	f := &fixture{
		subs:      repository.NewInMemorySubscriptionRepository(log),
		payments:  repository.NewInMemoryPaymentRepository(),
		events:    repository.NewInMemoryWebhookEventRepository(),
		credits:   repository.NewInMemoryCreditsRepository(log),
		metrics:   &recordedMetrics{CreditMetrics: metrics.NewNopCreditMetrics()},
		publisher: &capturePublisher{},
	}
	plans := repository.NewInMemoryPlanRepository(
		domain.SubscriptionPlan{ID: "plan_basic", Name: "Basic", Tier: domain.TierBasic, StripePriceID: "price_basic", Active: true},
		domain.SubscriptionPlan{ID: "plan_pro", Name: "Pro", Tier: domain.TierPro, StripePriceID: "price_pro", Active: true},
	)
	f.rec = NewReconciler(testSecret, ReconcilerDeps{
		Subscriptions: f.subs,
		Plans:         plans,
		Payments:      f.payments,
		Events:        f.events,
		Credits:       f.credits,
		Publisher:     f.publisher,
		Metrics:       f.metrics,
	}, log)
	return f
}

func signedEvent(t *testing.T, id, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-04-10",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return payload, signed.Header
}

func (f *fixture) deliver(t *testing.T, id, eventType string, object map[string]any) error {
	t.Helper()
	payload, header := signedEvent(t, id, eventType, object)
	return f.rec.Process(context.Background(), payload, header)
}

func subscriptionObject(subID, customerID, priceID, status string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   subID,
		"object":               "subscription",
		"customer":             customerID,
		"status":               status,
		"current_period_start": int64(1790000000),
		"current_period_end":   int64(1792592000),
		"cancel_at_period_end": false,
		"metadata":             metadata,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "si_1", "object": "subscription_item", "price": map[string]any{"id": priceID, "object": "price"}},
			},
		},
	}
}

func TestVerifyEvent(t *testing.T) {
	payload, header := signedEvent(t, "evt_1", "ping", map[string]any{"id": "x"})

	event, err := VerifyEvent(payload, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = VerifyEvent(payload, header, "whsec_other")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = VerifyEvent(payload, "", testSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = VerifyEvent(payload, header, "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestProcess_RejectsBadSignatureBeforeParsing(t *testing.T) {
	f := newFixture(t)
	err := f.rec.Process(context.Background(), []byte("not json"), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Empty(t, f.metrics.outcomes)
}

func TestProcess_CheckoutCompletedUpgradesTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.credits.Provision(ctx, "u1", domain.TierFree, 20, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.credits.Consume(ctx, &domain.CreditUsage{UserID: "u1", Action: domain.ActionResume, CreditsUsed: 3, Metadata: domain.Metadata{}})
	require.NoError(t, err)

	err = f.deliver(t, "evt_checkout", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"user_id": "u1", "price_id": "price_pro"},
	})
	require.NoError(t, err)

	sub, err := f.subs.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "plan_pro", sub.PlanID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)

	uc, err := f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, uc.Tier)
	assert.Equal(t, 200, uc.CreditsTotal)
	assert.Equal(t, 3, uc.CreditsUsed, "usage survives a tier change")

	assert.Equal(t, []string{"free->pro"}, f.metrics.tierChanges)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.TierPro, f.publisher.events[0].Tier)
}

func TestProcess_CheckoutWithUnknownPriceIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	err := f.deliver(t, "evt_unknown", "checkout.session.completed", map[string]any{
		"id":       "cs_2",
		"object":   "checkout.session",
		"metadata": map[string]string{"user_id": "u1", "price_id": "price_missing"},
	})
	require.NoError(t, err)

	_, err = f.subs.GetByUserID(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcess_DuplicateDeliveryIsSkipped(t *testing.T) {
	f := newFixture(t)
	object := map[string]any{
		"id":                  "cs_3",
		"object":              "checkout.session",
		"client_reference_id": "u2",
		"metadata":            map[string]string{"price_id": "price_basic"},
	}
	require.NoError(t, f.deliver(t, "evt_dup", "checkout.session.completed", object))
	require.NoError(t, f.deliver(t, "evt_dup", "checkout.session.completed", object))

	assert.Equal(t, []string{
		"checkout.session.completed:processed",
		"checkout.session.completed:duplicate",
	}, f.metrics.outcomes)
	assert.Len(t, f.publisher.events, 1)
}

func TestProcess_SubscriptionUpdatedResolvesUserByCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.subs.Upsert(ctx, &domain.UserSubscription{UserID: "u1", StripeCustomerID: "cus_9", Status: domain.SubscriptionStatusIncomplete}))

	err := f.deliver(t, "evt_sub", "customer.subscription.updated", subscriptionObject("sub_9", "cus_9", "price_basic", "active", nil))
	require.NoError(t, err)

	sub, err := f.subs.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sub_9", sub.StripeSubscriptionID)
	assert.Equal(t, "plan_basic", sub.PlanID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, int64(1792592000), sub.CurrentPeriodEnd.Unix())

	uc, err := f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierBasic, uc.Tier)
}

func TestProcess_SubscriptionUnknownPriceKeepsPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.subs.Upsert(ctx, &domain.UserSubscription{UserID: "u1", PlanID: "plan_pro", StripeSubscriptionID: "sub_1", Status: domain.SubscriptionStatusActive}))

	err := f.deliver(t, "evt_price", "customer.subscription.updated", subscriptionObject("sub_1", "cus_1", "price_legacy", "active", nil))
	require.NoError(t, err)

	sub, err := f.subs.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "plan_pro", sub.PlanID)

	uc, err := f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, uc.Tier)
}

func TestProcess_SubscriptionDeletedDowngradesToFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.deliver(t, "evt_a", "customer.subscription.created", subscriptionObject("sub_1", "cus_1", "price_pro", "active", map[string]string{"user_id": "u1"})))
	_, err := f.credits.Consume(ctx, &domain.CreditUsage{UserID: "u1", Action: domain.ActionDiagram, CreditsUsed: 30, Metadata: domain.Metadata{}})
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, "evt_b", "customer.subscription.deleted", subscriptionObject("sub_1", "cus_1", "price_pro", "canceled", nil)))

	sub, err := f.subs.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	uc, err := f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, uc.Tier)
	assert.Equal(t, 20, uc.CreditsTotal)
	assert.Equal(t, 30, uc.CreditsUsed)
	assert.Equal(t, []string{"free->pro", "pro->free"}, f.metrics.tierChanges)
}

func TestProcess_InvoiceEventsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.subs.Upsert(ctx, &domain.UserSubscription{UserID: "u1", PlanID: "plan_basic", StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1", Status: domain.SubscriptionStatusActive}))

	invoice := func(amountPaid, amountDue int64) map[string]any {
		return map[string]any{
			"id":                 "in_1",
			"object":             "invoice",
			"customer":           "cus_1",
			"subscription":       "sub_1",
			"amount_paid":        amountPaid,
			"amount_due":         amountDue,
			"currency":           "usd",
			"hosted_invoice_url": "https://invoice.stripe.com/i/in_1",
		}
	}

	require.NoError(t, f.deliver(t, "evt_fail", "invoice.payment_failed", invoice(0, 900)))
	sub, err := f.subs.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, sub.Status)
	uc, err := f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, uc.Tier)

	// та же пара (invoice, status) под другим event id
	require.NoError(t, f.deliver(t, "evt_fail_retry", "invoice.payment_failed", invoice(0, 900)))
	require.NoError(t, f.deliver(t, "evt_ok", "invoice.payment_succeeded", invoice(900, 900)))

	payments, err := f.payments.ListByUserID(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	statuses := map[domain.PaymentStatus]int64{}
	for _, p := range payments {
		statuses[p.Status] = p.Amount
	}
	assert.Equal(t, int64(900), statuses[domain.PaymentStatusFailed])
	assert.Equal(t, int64(900), statuses[domain.PaymentStatusSucceeded])

	uc, err = f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierBasic, uc.Tier)
}

func TestProcess_LateInvoiceKeepsCanceledSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.deliver(t, "evt_a", "customer.subscription.created", subscriptionObject("sub_1", "cus_1", "price_pro", "active", map[string]string{"user_id": "u1"})))
	require.NoError(t, f.deliver(t, "evt_b", "customer.subscription.deleted", subscriptionObject("sub_1", "cus_1", "price_pro", "canceled", nil)))

	require.NoError(t, f.deliver(t, "evt_late", "invoice.payment_succeeded", map[string]any{
		"id":           "in_late",
		"object":       "invoice",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"amount_paid":  int64(2900),
		"currency":     "usd",
	}))

	sub, err := f.subs.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	uc, err := f.credits.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, uc.Tier)

	payments, err := f.payments.ListByUserID(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusSucceeded, payments[0].Status)
}

func TestProcess_UnresolvableInvoiceIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	err := f.deliver(t, "evt_orphan", "invoice.payment_succeeded", map[string]any{
		"id":       "in_404",
		"object":   "invoice",
		"customer": "cus_unknown",
	})
	require.NoError(t, err)

	processed, err := f.events.IsProcessed(context.Background(), "evt_orphan")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestProcess_IgnoresOtherEventTypes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.deliver(t, "evt_other", "customer.created", map[string]any{"id": "cus_1", "object": "customer"}))
	assert.Equal(t, []string{"customer.created:ignored"}, f.metrics.outcomes)
}

type failingSubs struct {
	repository.SubscriptionRepository
}

func (failingSubs) Upsert(ctx context.Context, sub *domain.UserSubscription) error {
	return fmt.Errorf("connection reset")
}

func TestProcess_StoreErrorIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.rec.deps.Subscriptions = failingSubs{SubscriptionRepository: f.subs}

	err := f.deliver(t, "evt_retry", "checkout.session.completed", map[string]any{
		"id":       "cs_9",
		"object":   "checkout.session",
		"metadata": map[string]string{"user_id": "u1", "price_id": "price_basic"},
	})
	assert.ErrorContains(t, err, "connection reset")

	processed, err := f.events.IsProcessed(context.Background(), "evt_retry")
	require.NoError(t, err)
	assert.False(t, processed, "failed delivery must be retried by Stripe")
}
