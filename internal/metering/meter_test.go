package metering

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.UsageEvent
	err    error
}

func (p *recordingPublisher) PublishUsage(ctx context.Context, event domain.UsageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestMeter(t *testing.T, opts ...Option) (*Meter, *repository.InMemoryCreditsRepository) {
	t.Helper()
	repo := repository.NewInMemoryCreditsRepository(logger.NewNop())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewMeter(repo, logger.NewNop(), opts...), repo
}

func ok(ctx context.Context) (any, error) { return "artifact", nil }

func TestBalance_ProvisionsFreeRowOnce(t *testing.T) {
	meter, repo := newTestMeter(t)

	uc, err := meter.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, uc.Tier)
	assert.Equal(t, 20, uc.CreditsTotal)
	assert.Zero(t, uc.CreditsUsed)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), uc.CreditsResetAt)

	_, err = meter.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Count())
}

func TestBalance_RequiresIdentity(t *testing.T) {
	meter, _ := newTestMeter(t)
	_, err := meter.Balance(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestBalance_ConcurrentFirstUseCreatesOneRow(t *testing.T) {
	meter, repo := newTestMeter(t)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := meter.Balance(context.Background(), "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, repo.Count())
}

func TestBalance_ResetsExpiredPeriod(t *testing.T) {
	meter, repo := newTestMeter(t)
	repo.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierBasic, CreditsTotal: 50, CreditsUsed: 50, CreditsResetAt: fixedNow.Add(-time.Second)})

	uc, err := meter.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, uc.CreditsUsed)
	assert.True(t, uc.CreditsResetAt.After(fixedNow))
	assert.Equal(t, domain.TierBasic, uc.Tier)
}

func TestBalance_BoundaryDoesNotReset(t *testing.T) {
	meter, repo := newTestMeter(t)
	repo.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierFree, CreditsTotal: 20, CreditsUsed: 7, CreditsResetAt: fixedNow})

	uc, err := meter.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, uc.CreditsUsed)
}

func TestRun_FreeTierLastCredit(t *testing.T) {
	meter, repo := newTestMeter(t)
	repo.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierFree, CreditsTotal: 20, CreditsUsed: 19, CreditsResetAt: fixedNow.Add(time.Hour)})
	ctx := context.Background()

	res, err := meter.Run(ctx, Request{UserID: "u1", Action: domain.ActionResume}, ok)
	require.NoError(t, err)
	assert.Equal(t, "artifact", res.Value)
	assert.Equal(t, 1, res.CreditsUsed)
	assert.Zero(t, res.CreditsRemaining)
	assert.Equal(t, 20, res.Credits.CreditsUsed)

	_, err = meter.Run(ctx, Request{UserID: "u1", Action: domain.ActionResume}, ok)
	var insufficient *domain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Required)
	assert.Zero(t, insufficient.Remaining)
	assert.Equal(t, domain.TierFree, insufficient.Tier)

	usage, err := repo.ListUsage(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, usage, 1)
}

func TestRun_PresentationChargedPerSlide(t *testing.T) {
	meter, repo := newTestMeter(t)
	ctx := context.Background()
	repo.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierFree, CreditsTotal: 20, CreditsUsed: 16, CreditsResetAt: fixedNow.Add(time.Hour)})

	called := false
	_, err := meter.Run(ctx, Request{UserID: "u1", Action: domain.ActionPresentation, Multiplier: 5}, func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	})
	var insufficient *domain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Required)
	assert.Equal(t, 4, insufficient.Remaining)
	assert.False(t, called, "action must not run without balance")

	repo.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierFree, CreditsTotal: 20, CreditsUsed: 15, CreditsResetAt: fixedNow.Add(time.Hour)})
	res, err := meter.Run(ctx, Request{UserID: "u1", Action: domain.ActionPresentation, Multiplier: 5, Metadata: domain.Metadata{"slides": 5}}, ok)
	require.NoError(t, err)
	assert.Equal(t, 5, res.CreditsUsed)
	assert.Zero(t, res.CreditsRemaining)

	usage, err := repo.ListUsage(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 5, usage[0].CreditsUsed)
	assert.Equal(t, 5, usage[0].Metadata["slides"])
}

func TestRun_FailedActionIsNotCharged(t *testing.T) {
	meter, repo := newTestMeter(t)
	ctx := context.Background()
	boom := domain.NewExternalServiceError("openai", "server_error", "bad gateway", 502, nil)

	_, err := meter.Run(ctx, Request{UserID: "u1", Action: domain.ActionLetter}, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	uc, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, uc.CreditsUsed)
	usage, err := repo.ListUsage(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestRun_ValidatesRequest(t *testing.T) {
	meter, _ := newTestMeter(t)
	ctx := context.Background()

	_, err := meter.Run(ctx, Request{Action: domain.ActionLetter}, ok)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = meter.Run(ctx, Request{UserID: "u1", Action: "poem"}, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = meter.Run(ctx, Request{UserID: "u1", Action: domain.ActionPresentation, Multiplier: -1}, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRun_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	meter, repo := newTestMeter(t)
	const n = 12
	repo.Put(domain.UserCredits{UserID: "u1", Tier: domain.TierBasic, CreditsTotal: 50, CreditsUsed: 50 - (n - 1), CreditsResetAt: fixedNow.Add(time.Hour)})

	var succeeded, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := meter.Run(context.Background(), Request{UserID: "u1", Action: domain.ActionDiagram}, ok)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientCredits):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n-1), succeeded.Load())
	assert.Equal(t, int32(1), rejected.Load())

	uc, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, uc.CreditsUsed)
}

func TestRun_PublishesUsageEvent(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("kafka down")}
	meter, _ := newTestMeter(t, WithPublisher(pub))

	res, err := meter.Run(context.Background(), Request{UserID: "u1", Action: domain.ActionCoverLetter}, ok)
	require.NoError(t, err, "publish failures are not surfaced")
	meter.Wait()

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, domain.ActionCoverLetter, event.Action)
	assert.Equal(t, res.CreditsRemaining, event.Remaining)
}

func TestRun_NilActionDeductsOnly(t *testing.T) {
	meter, _ := newTestMeter(t)
	res, err := meter.Run(context.Background(), Request{UserID: "u1", Action: domain.ActionATSCheck}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Value)
	assert.Equal(t, 19, res.CreditsRemaining)
}
