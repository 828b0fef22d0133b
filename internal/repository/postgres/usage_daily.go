package postgres

import (
	"context"
	"fmt"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/jackc/pgx/v5"
)

// Событие учитывается в дневной сводке только при первой вставке его id.
const rollupQuery = `
    WITH seen AS (
        INSERT INTO credit_usage_events_seen (event_id) VALUES ($1)
        ON CONFLICT (event_id) DO NOTHING
        RETURNING event_id
    )
    INSERT INTO credit_usage_daily (day, user_id, action, events, credits)
    SELECT $2::date, $3, $4, 1, $5 FROM seen
    ON CONFLICT (day, user_id, action) DO UPDATE SET
        events  = credit_usage_daily.events + 1,
        credits = credit_usage_daily.credits + EXCLUDED.credits`

// BatchSender часть pgxpool.Pool, нужная для сводки.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// UsageRollupRepository дневные сводки расхода кредитов.
type UsageRollupRepository struct {
	db  BatchSender
	log *logger.Logger
}

// NewUsageRollupRepository создает репозиторий сводок поверх пула pgx.
func NewUsageRollupRepository(db BatchSender, log *logger.Logger) *UsageRollupRepository {
	return &UsageRollupRepository{db: db, log: log}
}

// Apply добавляет события в сводку одним батчем. Возвращает число учтенных событий;
// повторно доставленные события не учитываются.
func (r *UsageRollupRepository) Apply(ctx context.Context, events []domain.UsageEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		day := e.OccurredAt.UTC().Format("2006-01-02")
		batch.Queue(rollupQuery, e.EventID, day, e.UserID, string(e.Action), e.CreditsUsed)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	counted := 0
	for _, e := range events {
		tag, err := results.Exec()
		if err != nil {
			r.log.Errorw("Failed to apply usage rollup", "error", err, "eventID", e.EventID)
			return counted, fmt.Errorf("postgres: failed to apply usage event %s: %w", e.EventID, err)
		}
		counted += int(tag.RowsAffected())
	}

	r.log.Debugw("Usage rollup applied", "events", len(events), "counted", counted)
	return counted, nil
}
