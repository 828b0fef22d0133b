package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "credits.usage", cfg.Kafka.UsageTopic)
	assert.Equal(t, "authenticated", cfg.Auth.Audience)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, []string{"openai", "mistral", "gemini"}, cfg.Generation.Providers)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DATABASE_DSN", "postgres://localhost/credits")
	t.Setenv("STRIPE_WEBHOOKSECRET", "whsec_test")
	t.Setenv("AUTH_JWTSECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "postgres://localhost/credits", cfg.Database.DSN)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GRPC_PORT=9555\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GRPC_PORT") })

	cfg, err := LoadConfig(envPath)
	require.NoError(t, err)
	assert.Equal(t, "9555", cfg.GRPC.Port)
}

func TestLoadConfig_MissingDotEnvIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := LoadConfig("does-not-exist.env")
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	var cfg Config
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
	assert.Contains(t, err.Error(), "auth.jwtSecret")
	assert.Contains(t, err.Error(), "stripe.webhookSecret")
}
