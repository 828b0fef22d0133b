package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const (
	// Топики по умолчанию
	DefaultUsageTopic        = "credits.usage"
	DefaultSubscriptionTopic = "subscriptions.changed"
	DefaultGroupID           = "credits-usage-rollup"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers           []string
	UsageTopic        string
	SubscriptionTopic string
	Consumer          ConsumerConfig
}

// ConsumerConfig конфигурация для консьюмера
type ConsumerConfig struct {
	Group             string
	InitialOffset     int64
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	BatchSize         int
	FlushInterval     time.Duration
}

// NewConfig создает новую конфигурацию Kafka
func NewConfig(brokers []string, usageTopic, subscriptionTopic, group string) *Config {
	if usageTopic == "" {
		usageTopic = DefaultUsageTopic
	}
	if subscriptionTopic == "" {
		subscriptionTopic = DefaultSubscriptionTopic
	}
	if group == "" {
		group = DefaultGroupID
	}
	return &Config{
		Brokers:           brokers,
		UsageTopic:        usageTopic,
		SubscriptionTopic: subscriptionTopic,
		Consumer: ConsumerConfig{
			Group:             group,
			InitialOffset:     sarama.OffsetOldest,
			SessionTimeout:    10 * time.Second,
			HeartbeatInterval: 3 * time.Second,
			BatchSize:         100,
			FlushInterval:     2 * time.Second,
		},
	}
}

// Topics возвращает топики продюсера
func (c *Config) Topics() Topics {
	return Topics{Usage: c.UsageTopic, Subscription: c.SubscriptionTopic}
}

// NewSaramaConfig создает конфигурацию Sarama для группы потребителей
func NewSaramaConfig(cfg *Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	// Версия Kafka
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = cfg.Consumer.Group

	saramaConfig.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = cfg.Consumer.HeartbeatInterval
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	saramaConfig.Consumer.Offsets.Initial = cfg.Consumer.InitialOffset
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	saramaConfig.Consumer.IsolationLevel = sarama.ReadCommitted
	saramaConfig.Consumer.Return.Errors = true

	return saramaConfig
}
