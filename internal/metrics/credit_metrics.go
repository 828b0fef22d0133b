package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CreditMetrics метрики списания кредитов и обработки вебхуков
type CreditMetrics interface {
	ObserveDeduction(action, tier string, credits int)
	IncRejected(action, tier string)
	IncActionFailed(action string)
	IncWebhookEvent(eventType, outcome string)
	IncTierChange(from, to string)
	ObserveUsageEventsApplied(n int)
}

type creditMetrics struct {
	deductions     *prometheus.CounterVec
	creditsSpent   *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	actionFailures *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	tierChanges    *prometheus.CounterVec
	deductionSize  *prometheus.HistogramVec
	usageApplied   prometheus.Counter
}

// NewCreditMetrics регистрирует метрики в registry
func NewCreditMetrics(registry prometheus.Registerer) CreditMetrics {
	factory := promauto.With(registry)

	return &creditMetrics{
		deductions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_deductions_total",
				Help: "The total number of successful credit deductions",
			},
			[]string{"action", "tier"},
		),
		creditsSpent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_spent_total",
				Help: "The total number of credits spent",
			},
			[]string{"action", "tier"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_insufficient_total",
				Help: "Requests rejected for insufficient credits",
			},
			[]string{"action", "tier"},
		),
		actionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_action_failures_total",
				Help: "Protected actions that failed and were not charged",
			},
			[]string{"action"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripe_webhook_events_total",
				Help: "Stripe webhook deliveries by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		tierChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credits_tier_changes_total",
				Help: "Tier changes applied by the reconciler",
			},
			[]string{"from", "to"},
		),
		deductionSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credits_deduction_size",
				Help:    "Credits charged per deduction",
				Buckets: []float64{1, 2, 5, 10, 20, 50},
			},
			[]string{"action"},
		),
		usageApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "credits_usage_events_applied_total",
				Help: "Usage events folded into daily rollups",
			},
		),
	}
}

// ObserveDeduction учитывает успешное списание
func (m *creditMetrics) ObserveDeduction(action, tier string, credits int) {
	m.deductions.WithLabelValues(action, tier).Inc()
	m.creditsSpent.WithLabelValues(action, tier).Add(float64(credits))
	m.deductionSize.WithLabelValues(action).Observe(float64(credits))
}

// IncRejected учитывает отказ из-за нехватки кредитов
func (m *creditMetrics) IncRejected(action, tier string) {
	m.rejected.WithLabelValues(action, tier).Inc()
}

// IncActionFailed учитывает упавшее действие
func (m *creditMetrics) IncActionFailed(action string) {
	m.actionFailures.WithLabelValues(action).Inc()
}

// IncWebhookEvent учитывает доставку вебхука
func (m *creditMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncTierChange учитывает смену уровня
func (m *creditMetrics) IncTierChange(from, to string) {
	m.tierChanges.WithLabelValues(from, to).Inc()
}

// ObserveUsageEventsApplied учитывает события, попавшие в сводку
func (m *creditMetrics) ObserveUsageEventsApplied(n int) {
	m.usageApplied.Add(float64(n))
}

type nopMetrics struct{}

// NewNopCreditMetrics метрики-заглушка для тестов и CLI
func NewNopCreditMetrics() CreditMetrics { return nopMetrics{} }

func (nopMetrics) ObserveDeduction(string, string, int) {}
func (nopMetrics) IncRejected(string, string)           {}
func (nopMetrics) IncActionFailed(string)               {}
func (nopMetrics) IncWebhookEvent(string, string)       {}
func (nopMetrics) IncTierChange(string, string)         {}
func (nopMetrics) ObserveUsageEventsApplied(int)        {}
