package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port      string `mapstructure:"port"`
		Env       string `mapstructure:"env"`
		LogLevel  string `mapstructure:"logLevel"`
		PublicURL string `mapstructure:"publicUrl"` // базовый URL фронтенда для редиректов Stripe
	} `mapstructure:"app"`
	Database struct {
		DSN             string        `mapstructure:"dsn"`
		MaxOpenConns    int           `mapstructure:"maxOpenConns"`
		MaxIdleConns    int           `mapstructure:"maxIdleConns"`
		ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
		AutoMigrate     bool          `mapstructure:"autoMigrate"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers           []string `mapstructure:"brokers"`
		UsageTopic        string   `mapstructure:"usageTopic"`
		SubscriptionTopic string   `mapstructure:"subscriptionTopic"`
		GroupID           string   `mapstructure:"groupId"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey        string `mapstructure:"apiKey"`
		WebhookSecret string `mapstructure:"webhookSecret"`
	} `mapstructure:"stripe"`
	GRPC struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"grpc"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"` // секрет подписи JWT Supabase
		Audience  string `mapstructure:"audience"`
	} `mapstructure:"auth"`
	RateLimit struct {
		Rate string `mapstructure:"rate"` // формат ulule/limiter, например "60-M"
	} `mapstructure:"rateLimit"`
	Generation struct {
		Providers      []string      `mapstructure:"providers"` // порядок перебора провайдеров
		OpenAIKey      string        `mapstructure:"openaiKey"`
		OpenAIModel    string        `mapstructure:"openaiModel"`
		MistralKey     string        `mapstructure:"mistralKey"`
		MistralModel   string        `mapstructure:"mistralModel"`
		GeminiKey      string        `mapstructure:"geminiKey"`
		GeminiModel    string        `mapstructure:"geminiModel"`
		Timeout        time.Duration `mapstructure:"timeout"`
		MaxRetries     uint64        `mapstructure:"maxRetries"`
		RequestsPerSec float64       `mapstructure:"requestsPerSec"`
		Burst          int           `mapstructure:"burst"`
	} `mapstructure:"generation"`
	Scheduler struct {
		ResetSweepSpec string `mapstructure:"resetSweepSpec"` // cron выражение
	} `mapstructure:"scheduler"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"cors"`
}

// IsProduction возвращает true для production окружения.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.publicUrl", "http://localhost:3000")
	v.SetDefault("database.maxOpenConns", 20)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)
	v.SetDefault("database.autoMigrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.usageTopic", "credits.usage")
	v.SetDefault("kafka.subscriptionTopic", "subscriptions.changed")
	v.SetDefault("kafka.groupId", "credits-usage-rollup")
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("rateLimit.rate", "60-M")
	v.SetDefault("generation.providers", []string{"openai", "mistral", "gemini"})
	v.SetDefault("generation.openaiModel", "gpt-4o-mini")
	v.SetDefault("generation.mistralModel", "mistral-small-latest")
	v.SetDefault("generation.geminiModel", "gemini-1.5-flash")
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.maxRetries", 3)
	v.SetDefault("generation.requestsPerSec", 5.0)
	v.SetDefault("generation.burst", 10)
	v.SetDefault("scheduler.resetSweepSpec", "@every 10m")
	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:3000"})
}

// LoadConfig загружает конфигурацию из файла или переменных окружения.
// path указывает на .env файл; его отсутствие не является ошибкой.
// Переменные окружения именуются по ключу: database.dsn -> DATABASE_DSN.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" && path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	// AutomaticEnv не видит ключи без значения по умолчанию при Unmarshal
	for _, key := range []string{
		"database.dsn", "redis.password", "stripe.apiKey", "stripe.webhookSecret",
		"auth.jwtSecret", "generation.openaiKey", "generation.mistralKey", "generation.geminiKey",
	} {
		_ = v.BindEnv(key)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	// Списки из переменных окружения приходят строкой через запятую
	config.Kafka.Brokers = splitList(config.Kafka.Brokers)
	config.Generation.Providers = splitList(config.Generation.Providers)
	config.CORS.AllowedOrigins = splitList(config.CORS.AllowedOrigins)

	return &config, nil
}

// Validate проверяет обязательные параметры для запуска HTTP сервера.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("stripe.webhookSecret is required"))
	}
	return errors.Join(errs...)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
