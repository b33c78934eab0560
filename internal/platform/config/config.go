package config

import (
	"os"
	"time"
)

// Config captures process-level configuration so main stays lean. Unset
// backends (Redis, Postgres, Kafka) mean the in-memory equivalents are used.
type Config struct {
	Addr              string
	RulesDir          string
	ReceiptSigningKey string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// RedisConfig holds connection tuning for the artifact store when Redis is
// the configured backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	DSN string
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	addr := os.Getenv("LEXAUDIT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	rulesDir := os.Getenv("LEXAUDIT_RULES_DIR")
	if rulesDir == "" {
		rulesDir = "rules"
	}

	signingKey := os.Getenv("RECEIPT_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "lexaudit.audit.events"
	}

	return Config{
		Addr:              addr,
		RulesDir:          rulesDir,
		ReceiptSigningKey: signingKey,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{DSN: os.Getenv("POSTGRES_DSN")},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   topic,
		},
	}
}
