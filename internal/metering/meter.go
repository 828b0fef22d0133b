// Package metering wraps protected actions with the balance check, the
// atomic deduction and the usage log. Every generation endpoint goes through
// Meter.Run.
package metering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/credits"
	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/metrics"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// UsagePublisher receives a usage event after every committed deduction.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event domain.UsageEvent) error
}

// Action is the protected operation. Its result is returned untouched.
type Action func(ctx context.Context) (any, error)

// Request describes one metered call.
type Request struct {
	UserID string
	Action domain.ActionType
	// Multiplier scales the action cost (slides for presentations). Zero means 1.
	Multiplier int
	Metadata   domain.Metadata
}

// Result is returned after a successful deduction.
type Result struct {
	Value            any
	CreditsUsed      int
	CreditsRemaining int
	Tier             domain.Tier
	Credits          *domain.UserCredits
}

// Meter is safe for concurrent use.
type Meter struct {
	repo      repository.CreditsRepository
	publisher UsagePublisher
	metrics   metrics.CreditMetrics
	log       *logger.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

// Option configures a Meter.
type Option func(*Meter)

// WithPublisher sets the usage event publisher.
func WithPublisher(p UsagePublisher) Option {
	return func(m *Meter) { m.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(cm metrics.CreditMetrics) Option {
	return func(m *Meter) { m.metrics = cm }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Meter) { m.now = now }
}

func NewMeter(repo repository.CreditsRepository, log *logger.Logger, opts ...Option) *Meter {
	m := &Meter{
		repo:    repo,
		metrics: metrics.NewNopCreditMetrics(),
		log:     log.Named("metering"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Balance returns the caller's credit row, provisioning a free row on first
// use and rolling the period over when it has expired.
func (m *Meter) Balance(ctx context.Context, userID string) (*domain.UserCredits, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	now := m.now().UTC()
	uc, err := m.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		uc, err = m.repo.Provision(ctx, userID, domain.TierFree, credits.Limit(domain.TierFree), credits.NextReset(now))
	}
	if err != nil {
		return nil, fmt.Errorf("metering: load balance: %w", err)
	}

	if credits.ShouldReset(now, uc.CreditsResetAt) {
		uc, err = m.repo.ResetIfDue(ctx, userID, now, credits.NextReset(now))
		if err != nil {
			return nil, fmt.Errorf("metering: reset period: %w", err)
		}
		m.log.Infow("Credit period rolled over", "userID", userID, "nextResetAt", uc.CreditsResetAt)
	}
	return uc, nil
}

// Run checks the balance, executes fn and deducts the cost only if fn
// succeeded. A failed fn is never charged. The deduction and the usage log
// row commit together.
func (m *Meter) Run(ctx context.Context, req Request, fn Action) (*Result, error) {
	if req.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if _, ok := credits.ActionCosts[req.Action]; !ok {
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, req.Action)
	}
	if req.Multiplier < 0 {
		return nil, fmt.Errorf("%w: multiplier must not be negative", domain.ErrInvalidInput)
	}

	uc, err := m.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	required := credits.Required(req.Action, req.Multiplier)
	remaining := credits.Remaining(uc.CreditsTotal, uc.CreditsUsed)
	if remaining < required {
		m.metrics.IncRejected(string(req.Action), string(uc.Tier))
		m.log.Debugw("Insufficient credits", "userID", req.UserID, "action", req.Action, "required", required, "remaining", remaining)
		return nil, domain.NewInsufficientCreditsError(required, remaining, uc.Tier)
	}

	var value any
	if fn != nil {
		value, err = fn(ctx)
		if err != nil {
			m.metrics.IncActionFailed(string(req.Action))
			m.log.Warnw("Protected action failed, nothing charged", "userID", req.UserID, "action", req.Action, "error", err)
			return nil, err
		}
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	usage := &domain.CreditUsage{
		UserID:      req.UserID,
		Action:      req.Action,
		CreditsUsed: required,
		Metadata:    metadata,
	}

	updated, err := m.repo.Consume(ctx, usage)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			// баланс потратил конкурентный запрос между проверкой и списанием
			return nil, m.lostRace(ctx, req, required, uc.Tier)
		}
		return nil, fmt.Errorf("metering: deduct credits: %w", err)
	}

	left := credits.Remaining(updated.CreditsTotal, updated.CreditsUsed)
	m.metrics.ObserveDeduction(string(req.Action), string(updated.Tier), required)
	m.publish(domain.UsageEvent{
		EventID:     uuid.NewString(),
		UserID:      req.UserID,
		Action:      req.Action,
		Tier:        updated.Tier,
		CreditsUsed: required,
		Remaining:   left,
		OccurredAt:  usage.CreatedAt,
	})

	m.log.Infow("Credits deducted", "userID", req.UserID, "action", req.Action, "creditsUsed", required, "creditsRemaining", left)
	return &Result{
		Value:            value,
		CreditsUsed:      required,
		CreditsRemaining: left,
		Tier:             updated.Tier,
		Credits:          updated,
	}, nil
}

func (m *Meter) lostRace(ctx context.Context, req Request, required int, tier domain.Tier) error {
	m.metrics.IncRejected(string(req.Action), string(tier))
	remaining := 0
	if fresh, err := m.repo.Get(ctx, req.UserID); err == nil {
		remaining = credits.Remaining(fresh.CreditsTotal, fresh.CreditsUsed)
		tier = fresh.Tier
	}
	m.log.Infow("Deduction lost race for remaining credits", "userID", req.UserID, "action", req.Action, "required", required, "remaining", remaining)
	return domain.NewInsufficientCreditsError(required, remaining, tier)
}

// publish sends the event in the background. Failures are logged only.
func (m *Meter) publish(event domain.UsageEvent) {
	if m.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now().UTC()
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.publisher.PublishUsage(ctx, event); err != nil {
			m.log.Warnw("Failed to publish usage event", "error", err, "eventID", event.EventID, "userID", event.UserID)
		}
	}()
}

// Wait blocks until background publishes complete.
func (m *Meter) Wait() {
	m.inflight.Wait()
}
