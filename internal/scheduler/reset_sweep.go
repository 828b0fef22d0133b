package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/credits"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/robfig/cron/v3"
)

const sweepTimeout = time.Minute

// Resetter сбрасывает все истекшие периоды одним запросом.
type Resetter interface {
	ResetExpired(ctx context.Context, now, nextResetAt time.Time) (int64, error)
}

// ResetSweep периодически обнуляет балансы с истекшим периодом.
// Ленивый сброс в Meter.Balance остается основным механизмом, свип
// выравнивает строки пользователей, которые давно не заходили.
type ResetSweep struct {
	repo Resetter
	cron *cron.Cron
	log  *logger.Logger
	now  func() time.Time
}

// NewResetSweep создает планировщик с cron выражением spec ("@every 10m", "5 0 * * *").
func NewResetSweep(repo Resetter, spec string, log *logger.Logger) (*ResetSweep, error) {
	s := &ResetSweep{
		repo: repo,
		cron: cron.New(cron.WithLocation(time.UTC)),
		log:  log.Named("reset_sweep"),
		now:  time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start запускает планировщик в фоне.
func (s *ResetSweep) Start() {
	s.cron.Start()
	s.log.Infow("Reset sweep started", "entries", len(s.cron.Entries()))
}

// Stop останавливает планировщик и ждет завершения текущего прохода.
func (s *ResetSweep) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warnw("Reset sweep did not finish before shutdown")
	}
}

func (s *ResetSweep) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Errorw("Reset sweep failed", "error", err)
	}
}

// Sweep выполняет один проход.
func (s *ResetSweep) Sweep(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.repo.ResetExpired(ctx, now, credits.NextReset(now))
	if err != nil {
		return 0, fmt.Errorf("scheduler: reset expired periods: %w", err)
	}
	if n > 0 {
		s.log.Infow("Reset expired credit periods", "rows", n)
	}
	return n, nil
}
