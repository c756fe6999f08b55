// Package config builds engine configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the monitor binary needs to wire itself.
type Config struct {
	// Addr is the ops HTTP listen address (health, metrics, manual tick).
	Addr string

	// RegistryBaseURL points at the gazette query frontend.
	RegistryBaseURL string

	// DatabaseURL is the Postgres DSN. Empty selects in-memory stores,
	// which only makes sense for local development.
	DatabaseURL string

	Redis RedisConfig

	// KafkaBrokers and KafkaTopic configure the event deliverer. Empty
	// brokers select the log-only deliverer.
	KafkaBrokers []string
	KafkaTopic   string

	TickInterval      time.Duration
	Workers           int
	LeaseTTL          time.Duration
	FetchMaxAttempts  int
	DispatchInterval  time.Duration
	DispatchBatchSize int
}

// RedisConfig mirrors the go-redis options the lease store cares about.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:              envString("DIARIO_ADDR", ":8080"),
		RegistryBaseURL:   envString("DIARIO_REGISTRY_URL", "https://comunica.pje.jus.br"),
		DatabaseURL:       os.Getenv("DIARIO_DATABASE_URL"),
		KafkaTopic:        envString("DIARIO_KAFKA_TOPIC", "diario.publications"),
		TickInterval:      envDuration("DIARIO_TICK_INTERVAL", time.Minute),
		Workers:           envInt("DIARIO_WORKERS", 4),
		LeaseTTL:          envDuration("DIARIO_LEASE_TTL", 10*time.Minute),
		FetchMaxAttempts:  envInt("DIARIO_FETCH_MAX_ATTEMPTS", 5),
		DispatchInterval:  envDuration("DIARIO_DISPATCH_INTERVAL", 15*time.Second),
		DispatchBatchSize: envInt("DIARIO_DISPATCH_BATCH", 100),
		Redis: RedisConfig{
			URL:          os.Getenv("DIARIO_REDIS_URL"),
			PoolSize:     envInt("DIARIO_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("DIARIO_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("DIARIO_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("DIARIO_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("DIARIO_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
	if brokers := os.Getenv("DIARIO_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
