package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics конфигурация топиков сервиса.
func RequiredTopics(topics Topics) map[string]kafkaGo.TopicConfig {
	return map[string]kafkaGo.TopicConfig{
		topics.Usage: {
			Topic:             topics.Usage,
			NumPartitions:     6,
			ReplicationFactor: 1,
		},
		topics.Subscription: {
			Topic:             topics.Subscription,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}
}

// EnsureKafkaTopics проверяет и создает необходимые топики Kafka.
func EnsureKafkaTopics(ctx context.Context, brokers []string, topics Topics, log *logger.Logger) error {
	requiredTopics := RequiredTopics(topics)
	log.Infow("Ensuring Kafka topics exist...", "topics", topicNames(requiredTopics))

	if err := validateBroker(brokers); err != nil {
		log.Errorw("Invalid Kafka broker address", "error", err)
		return err
	}

	connCtx, cancelConn := context.WithTimeout(ctx, 15*time.Second)
	defer cancelConn()

	conn, err := kafkaGo.DialContext(connCtx, "tcp", strings.TrimSpace(brokers[0]))
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", brokers[0], "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		log.Errorw("Failed to read partitions from Kafka", "error", err)
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	existing := make(map[string]bool)
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	toCreate := missingTopics(requiredTopics, existing)
	if len(toCreate) == 0 {
		log.Infow("All required topics already exist.")
		return nil
	}

	// Создавать топики может только контроллер кластера
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	ctrlConn, err := kafkaGo.DialContext(connCtx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()

	if err := ctrlConn.CreateTopics(toCreate...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Warnw("One or more topics already existed during creation attempt", "topics", configNames(toCreate))
			return nil
		}
		log.Errorw("Failed to create topics", "error", err, "topics", configNames(toCreate))
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Successfully created topics", "topics", configNames(toCreate))
	return nil
}

func validateBroker(brokers []string) error {
	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	_, portStr, err := net.SplitHostPort(strings.TrimSpace(brokers[0]))
	if err != nil {
		return fmt.Errorf("invalid broker address %s: %w", brokers[0], err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", brokers[0], err)
	}
	return nil
}

func missingTopics(required map[string]kafkaGo.TopicConfig, existing map[string]bool) []kafkaGo.TopicConfig {
	var out []kafkaGo.TopicConfig
	for name, cfg := range required {
		if !existing[name] {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func topicNames(topicMap map[string]kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topicMap))
	for name := range topicMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func configNames(topicConfigs []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topicConfigs))
	for _, tc := range topicConfigs {
		names = append(names, tc.Topic)
	}
	return names
}
