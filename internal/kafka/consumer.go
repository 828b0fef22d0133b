package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
)

// UsageSink получает пачки событий использования.
type UsageSink interface {
	Apply(ctx context.Context, events []domain.UsageEvent) (int, error)
}

// UsageHandler обработчик группы потребителей топика использования.
// Offset помечается только после успешной записи пачки.
type UsageHandler struct {
	sink          UsageSink
	batchSize     int
	flushInterval time.Duration
	onApplied     func(n int)
	log           *logger.Logger
}

// NewUsageHandler создает обработчик; onApplied может быть nil.
func NewUsageHandler(sink UsageSink, cfg ConsumerConfig, onApplied func(n int), log *logger.Logger) *UsageHandler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if onApplied == nil {
		onApplied = func(int) {}
	}
	return &UsageHandler{
		sink:          sink,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		onApplied:     onApplied,
		log:           log,
	}
}

// Setup вызывается в начале новой сессии.
func (h *UsageHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.log.Infow("Consumer group session started", "memberID", session.MemberID(), "generation", session.GenerationID())
	return nil
}

// Cleanup вызывается в конце сессии.
func (h *UsageHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.log.Infow("Consumer group session ended", "memberID", session.MemberID())
	return nil
}

// ConsumeClaim читает партицию и пишет события пачками.
func (h *UsageHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	var (
		events []domain.UsageEvent
		last   *sarama.ConsumerMessage
	)

	flush := func() error {
		if last == nil {
			return nil
		}
		if len(events) > 0 {
			n, err := h.sink.Apply(session.Context(), events)
			if err != nil {
				return fmt.Errorf("kafka: failed to apply usage batch at offset %d: %w", last.Offset, err)
			}
			h.onApplied(n)
		}
		session.MarkMessage(last, "")
		events = events[:0]
		last = nil
		return nil
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			last = msg

			event, err := decodeUsage(msg)
			if err != nil {
				// Битые сообщения пропускаются, иначе партиция встанет
				h.log.Warnw("Skipping undecodable usage event", "error", err, "partition", msg.Partition, "offset", msg.Offset)
			} else {
				events = append(events, event)
			}

			if len(events) >= h.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

func decodeUsage(msg *sarama.ConsumerMessage) (domain.UsageEvent, error) {
	var event domain.UsageEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("invalid json: %w", err)
	}
	if event.EventID == "" || event.UserID == "" {
		return event, errors.New("eventId and userId are required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = msg.Timestamp
	}
	return event, nil
}

// RunConsumerGroup держит сессии группы до отмены ctx.
func RunConsumerGroup(ctx context.Context, cfg *Config, handler sarama.ConsumerGroupHandler, log *logger.Logger) error {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Consumer.Group, NewSaramaConfig(cfg))
	if err != nil {
		return fmt.Errorf("kafka: failed to create consumer group: %w", err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			log.Errorw("Failed to close consumer group", "error", err)
		}
	}()

	go func() {
		for err := range group.Errors() {
			log.Errorw("Consumer group error", "error", err)
		}
	}()

	log.Infow("Consuming usage events", "topic", cfg.UsageTopic, "group", cfg.Consumer.Group, "brokers", cfg.Brokers)
	for {
		if err := group.Consume(ctx, []string{cfg.UsageTopic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Errorw("Consumer group session failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
