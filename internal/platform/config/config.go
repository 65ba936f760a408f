// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TermCacheTTL bounds how long resolved vocabulary terms stay cached.
// Vocabularies change only on re-ingestion, so this is generous.
var TermCacheTTL = 12 * time.Hour

// Config captures everything the gateway needs at startup.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// EnginePath is the SQLite path (or DSN) backing the search engine.
	EnginePath string
	// DatabaseURL, when set, moves the trust registry to PostgreSQL.
	DatabaseURL string
	// RedisURL, when set, enables the vocabulary term cache.
	RedisURL string
	// KafkaBrokers, when non-empty, enables the audit publisher.
	KafkaBrokers []string
	// AuditTopic is the Kafka topic for administrative audit events.
	AuditTopic string
	// MatchLimit is the number of candidates returned per match query.
	MatchLimit int

	Fanout Fanout
}

// Fanout configures the federation proxy.
type Fanout struct {
	// Workers bounds concurrent partner calls; excess partners queue.
	Workers int
	// CallTimeout bounds each partner call.
	CallTimeout time.Duration
	// BatchTimeout bounds the whole fan-out regardless of pool backlog.
	BatchTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("MATCH_GATEWAY_ADDR", ":8000"),
		EnginePath:  envOr("ENGINE_PATH", "match-gateway.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		AuditTopic:  envOr("AUDIT_TOPIC", "match-gateway.audit"),
		MatchLimit:  envInt("MATCH_LIMIT", 5),
		Fanout: Fanout{
			Workers:      envInt("FANOUT_WORKERS", 8),
			CallTimeout:  envDuration("FANOUT_TIMEOUT", 5*time.Second),
			BatchTimeout: envDuration("FANOUT_BATCH_TIMEOUT", 30*time.Second),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

// Validate rejects configurations the gateway cannot start with.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.EnginePath, validation.Required),
		validation.Field(&c.MatchLimit, validation.Min(1)),
	); err != nil {
		return err
	}

	return validation.ValidateStruct(&c.Fanout,
		validation.Field(&c.Fanout.Workers, validation.Min(1)),
		validation.Field(&c.Fanout.CallTimeout, validation.Required),
		validation.Field(&c.Fanout.BatchTimeout, validation.Required),
	)
}

func envOr(key, fallback string) string {
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
