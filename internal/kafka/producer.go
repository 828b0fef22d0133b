package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Topics имена топиков, в которые пишет сервис.
type Topics struct {
	Usage        string
	Subscription string
}

// Producer публикует доменные события в Kafka.
// Ключ сообщения всегда user_id, чтобы события одного пользователя шли в одну партицию.
type Producer interface {
	PublishUsage(ctx context.Context, event domain.UsageEvent) error
	PublishSubscription(ctx context.Context, event domain.SubscriptionEvent) error
	Close() error
}

// messageWriter часть kafka.Writer, используемая продюсером.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer messageWriter
	topics Topics
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, topics Topics, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}
	if topics.Usage == "" {
		topics.Usage = DefaultUsageTopic
	}
	if topics.Subscription == "" {
		topics.Subscription = DefaultSubscriptionTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{}, // партиция по ключу
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "usageTopic", topics.Usage, "subscriptionTopic", topics.Subscription)
	return newProducer(writer, topics, log), nil
}

func newProducer(w messageWriter, topics Topics, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{writer: w, topics: topics, log: log}
}

// PublishUsage отправляет событие списания кредитов.
func (k *kafkaProducer) PublishUsage(ctx context.Context, event domain.UsageEvent) error {
	return k.publish(ctx, k.topics.Usage, event.UserID, "credits.usage", event)
}

// PublishSubscription отправляет событие изменения подписки.
func (k *kafkaProducer) PublishSubscription(ctx context.Context, event domain.SubscriptionEvent) error {
	return k.publish(ctx, k.topics.Subscription, event.UserID, event.Source, event)
}

func (k *kafkaProducer) publish(ctx context.Context, topic, key, eventType string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		k.log.Errorw("Failed to marshal event to JSON for Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
		Time: time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "key", key)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Successfully published message to Kafka", "topic", topic, "key", key, "eventType", eventType)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}

// NopProducer используется, когда брокеры не настроены.
type NopProducer struct{}

func (NopProducer) PublishUsage(context.Context, domain.UsageEvent) error { return nil }

func (NopProducer) PublishSubscription(context.Context, domain.SubscriptionEvent) error { return nil }

func (NopProducer) Close() error { return nil }
