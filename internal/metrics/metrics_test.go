package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCreditMetrics(registry).(*creditMetrics)

	m.ObserveDeduction("presentation", "free", 5)
	m.ObserveDeduction("presentation", "free", 3)
	m.IncRejected("resume", "free")
	m.IncWebhookEvent("invoice.payment_failed", "processed")
	m.IncTierChange("pro", "free")
	m.ObserveUsageEventsApplied(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deductions.WithLabelValues("presentation", "free")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.creditsSpent.WithLabelValues("presentation", "free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("resume", "free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("invoice.payment_failed", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tierChanges.WithLabelValues("pro", "free")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.usageApplied))

	count, err := testutil.GatherAndCount(registry, "credits_deduction_size")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type stubStats struct {
	stats []domain.TierStats
	err   error
	calls atomic.Int32
}

func (s *stubStats) Stats(ctx context.Context, now time.Time) ([]domain.TierStats, error) {
	s.calls.Add(1)
	return s.stats, s.err
}

func TestBalanceMetrics_Sample(t *testing.T) {
	registry := prometheus.NewRegistry()
	source := &stubStats{stats: []domain.TierStats{
		{Tier: domain.TierFree, Accounts: 12, DueForReset: 2, Exhausted: 5},
		{Tier: domain.TierPro, Accounts: 3},
	}}
	m := NewBalanceMetrics(registry, source, logger.NewNop()).(*balanceMetrics)

	require.NoError(t, m.Sample(context.Background()))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.accounts.WithLabelValues("free")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dueForReset.WithLabelValues("free")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.exhausted.WithLabelValues("free")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.accounts.WithLabelValues("pro")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.accounts.WithLabelValues("enterprise")))

	count, err := testutil.GatherAndCount(registry, "credits_accounts")
	require.NoError(t, err)
	assert.Equal(t, len(domain.Tiers), count)

	source.err = errors.New("db down")
	assert.Error(t, m.Sample(context.Background()))
	// прошлый замер сохраняется
	assert.Equal(t, 12.0, testutil.ToFloat64(m.accounts.WithLabelValues("free")))
}

func TestBalanceMetrics_StartStop(t *testing.T) {
	source := &stubStats{}
	m := NewBalanceMetrics(prometheus.NewRegistry(), source, logger.NewNop())

	m.StartRecording(time.Hour)
	m.Stop()
	assert.Equal(t, int32(1), source.calls.Load())
	assert.NotPanics(t, m.Stop)
}
