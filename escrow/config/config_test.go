package config

import (
	"testing"
	"time"

	"github.com/LerianStudio/lib-escrow/escrow/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// t.Setenv forbids t.Parallel, so these tests run sequentially.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.RevalidateOnCommit)
	assert.Equal(t, 4, cfg.PayoutConcurrency)
	assert.Equal(t, 3, cfg.PurseRetryAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.PurseRetryBase)
	assert.Equal(t, "escrow:purse", cfg.RedisKeyPrefix)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ESCROW_ENV", "production")
	t.Setenv("ESCROW_LOG_LEVEL", "warn")
	t.Setenv("ESCROW_REVALIDATE_ON_COMMIT", "true")
	t.Setenv("ESCROW_PAYOUT_CONCURRENCY", "8")
	t.Setenv("ESCROW_BREAKER_TIMEOUT", "3s")
	t.Setenv("ESCROW_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.True(t, cfg.RevalidateOnCommit)
	assert.Equal(t, 8, cfg.PayoutConcurrency)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)

	logCfg := cfg.LoggerConfig()
	assert.Equal(t, zap.EnvironmentProduction, logCfg.Environment)
	assert.Equal(t, "warn", logCfg.Level)

	breaker := cfg.BreakerConfig()
	assert.Equal(t, 3*time.Second, breaker.Timeout)
	assert.Equal(t, uint32(5), breaker.ConsecutiveFailures)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("ESCROW_PAYOUT_CONCURRENCY", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{name: "unknown environment", key: "ESCROW_ENV", value: "mars", field: "Env"},
		{name: "unknown log level", key: "ESCROW_LOG_LEVEL", value: "loud", field: "LogLevel"},
		{name: "zero concurrency", key: "ESCROW_PAYOUT_CONCURRENCY", value: "0", field: "PayoutConcurrency"},
		{name: "retry max below base", key: "ESCROW_PURSE_RETRY_MAX", value: "1ms", field: "PurseRetryMax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	policy := cfg.RetryPolicy(nil)
	assert.Equal(t, 3, policy.Attempts)
	assert.Equal(t, 50*time.Millisecond, policy.Base)
	assert.Equal(t, 2*time.Second, policy.Max)
	assert.Nil(t, policy.Retryable)
}
