package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const sampleTimeout = 10 * time.Second

// StatsSource отдает агрегаты по балансам
type StatsSource interface {
	Stats(ctx context.Context, now time.Time) ([]domain.TierStats, error)
}

// BalanceMetrics периодически снимает состояние балансов из хранилища
type BalanceMetrics interface {
	Sample(ctx context.Context) error
	StartRecording(interval time.Duration)
	Stop()
}

type balanceMetrics struct {
	source      StatsSource
	log         *logger.Logger
	now         func() time.Time
	accounts    *prometheus.GaugeVec
	dueForReset *prometheus.GaugeVec
	exhausted   *prometheus.GaugeVec
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewBalanceMetrics регистрирует gauges по уровням подписки
func NewBalanceMetrics(registry prometheus.Registerer, source StatsSource, log *logger.Logger) BalanceMetrics {
	factory := promauto.With(registry)
	return &balanceMetrics{
		source: source,
		log:    log,
		now:    time.Now,
		accounts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "credits_accounts",
			Help: "Number of credit balances per tier",
		}, []string{"tier"}),
		dueForReset: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "credits_accounts_due_for_reset",
			Help: "Balances whose period has ended but not yet been reset",
		}, []string{"tier"}),
		exhausted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "credits_accounts_exhausted",
			Help: "Balances with no credits left in the current period",
		}, []string{"tier"}),
		stopCh: make(chan struct{}),
	}
}

// Sample читает агрегаты и обновляет gauges.
// Уровни без строк выставляются в 0.
func (m *balanceMetrics) Sample(ctx context.Context) error {
	stats, err := m.source.Stats(ctx, m.now().UTC())
	if err != nil {
		return err
	}

	byTier := make(map[domain.Tier]domain.TierStats, len(stats))
	for _, st := range stats {
		byTier[st.Tier] = st
	}
	for _, tier := range domain.Tiers {
		st := byTier[tier]
		m.accounts.WithLabelValues(string(tier)).Set(float64(st.Accounts))
		m.dueForReset.WithLabelValues(string(tier)).Set(float64(st.DueForReset))
		m.exhausted.WithLabelValues(string(tier)).Set(float64(st.Exhausted))
	}
	return nil
}

func (m *balanceMetrics) sampleOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()
	if err := m.Sample(ctx); err != nil {
		m.log.Warnw("Failed to sample credit balances", "error", err)
	}
}

// StartRecording снимает агрегаты сразу и затем с заданным интервалом
func (m *balanceMetrics) StartRecording(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sampleOnce()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sampleOnce()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Infow("Balance metrics recording started", "interval", interval)
}

// Stop останавливает запись и ждет текущий замер
func (m *balanceMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}
