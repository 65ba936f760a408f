package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "match-gateway.db", cfg.EnginePath)
	assert.Equal(t, 5, cfg.MatchLimit)
	assert.Equal(t, 8, cfg.Fanout.Workers)
	assert.Equal(t, 5*time.Second, cfg.Fanout.CallTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fanout.BatchTimeout)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_GATEWAY_ADDR", ":9000")
	t.Setenv("FANOUT_WORKERS", "2")
	t.Setenv("FANOUT_TIMEOUT", "250ms")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg := FromEnv()

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 2, cfg.Fanout.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Fanout.CallTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	cfg := FromEnv()
	cfg.Fanout.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = FromEnv()
	cfg.Addr = ""
	assert.Error(t, cfg.Validate())
}
