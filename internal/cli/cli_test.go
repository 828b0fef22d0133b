package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	credits  *repository.InMemoryCreditsRepository
	plans    *repository.InMemoryPlanRepository
	migrated int
	released bool
}

func newFixture() *fixture {
	return &fixture{
		credits: repository.NewInMemoryCreditsRepository(logger.NewNop()),
		plans:   repository.NewInMemoryPlanRepository(),
	}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(func(ctx context.Context, path string) (*Deps, func(), error) {
		return &Deps{
			Credits: f.credits,
			Plans:   f.plans,
			Migrate: func(ctx context.Context) (int, error) { f.migrated++; return 3, nil },
			Now:     func() time.Time { return now },
		}, func() { f.released = true }, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	f := newFixture()
	out, err := f.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 3 migration(s)")
	assert.Equal(t, 1, f.migrated)
	assert.True(t, f.released)
}

func TestSetTierKeepsUsage(t *testing.T) {
	f := newFixture()
	f.credits.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierFree, CreditsTotal: 20, CreditsUsed: 12, CreditsResetAt: now.Add(24 * time.Hour)})

	out, err := f.run(t, "set-tier", "u1", "PRO")
	require.NoError(t, err)
	assert.Contains(t, out, "Tier:      pro (Pro)")
	assert.Contains(t, out, "Used:      12 / 200")

	_, err = f.run(t, "set-tier", "u1", "platinum")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestShowAndReset(t *testing.T) {
	f := newFixture()
	f.credits.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierBasic, CreditsTotal: 50, CreditsUsed: 50, CreditsResetAt: now.Add(time.Hour)})

	out, err := f.run(t, "show", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Remaining: 0")

	out, err = f.run(t, "reset", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Remaining: 50")
	assert.Contains(t, out, "Resets:    2026-06-01 00:00")

	_, err = f.run(t, "show", "nobody")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.run(t, "show")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	f := newFixture()
	f.credits.Put(domain.UserCredits{UserID: "old", Tier: domain.TierFree, CreditsTotal: 20, CreditsUsed: 5, CreditsResetAt: now.Add(-time.Hour)})

	out, err := f.run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset 1 balance(s)")
}

func TestPlans(t *testing.T) {
	f := newFixture()

	out, err := f.run(t, "plans", "upsert", "plan_pro", "Pro", "pro", "price_123")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan price_123 -> pro (plan_pro)")

	_, err = f.run(t, "plans", "upsert", "plan_old", "Legacy", "basic", "price_old", "--inactive")
	require.NoError(t, err)

	out, err = f.run(t, "plans", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "plan_old")
	assert.Contains(t, out, "price_123")
	assert.Contains(t, out, "false")

	plan, err := f.plans.GetByPriceID(context.Background(), "price_123")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, plan.Tier)
}
