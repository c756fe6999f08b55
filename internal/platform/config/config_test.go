package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "https://comunica.pje.jus.br", cfg.RegistryBaseURL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "diario.publications", cfg.KafkaTopic)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, 5, cfg.FetchMaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.DispatchInterval)
	assert.Equal(t, 100, cfg.DispatchBatchSize)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DIARIO_ADDR", ":9090")
	t.Setenv("DIARIO_REGISTRY_URL", "http://localhost:8081")
	t.Setenv("DIARIO_DATABASE_URL", "postgres://localhost/diario")
	t.Setenv("DIARIO_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("DIARIO_TICK_INTERVAL", "30s")
	t.Setenv("DIARIO_WORKERS", "8")
	t.Setenv("DIARIO_LEASE_TTL", "5m")
	t.Setenv("DIARIO_REDIS_URL", "redis://localhost:6379")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "http://localhost:8081", cfg.RegistryBaseURL)
	assert.Equal(t, "postgres://localhost/diario", cfg.DatabaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DIARIO_WORKERS", "many")
	t.Setenv("DIARIO_TICK_INTERVAL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.TickInterval)
}
