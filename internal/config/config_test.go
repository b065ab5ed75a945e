package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.SystemOverdraft)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadProductionRequiresInfrastructure(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a")
	t.Setenv("REFRESH_SECRET", "b")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("PORT", ":9090")
	t.Setenv("LOCK_TIMEOUT_SECONDS", "2")
	t.Setenv("SHUTDOWN_TIMEOUT", "1500ms")
	t.Setenv("STRICT_LEDGER_CHECK", "true")
	t.Setenv("SYSTEM_WALLET_OVERDRAFT", "1")
	t.Setenv("TRANSFER_RATE_LIMIT", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RELAY_BATCH_SIZE", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.ShutdownPeriod)
	assert.True(t, cfg.StrictLedgerCheck)
	assert.True(t, cfg.SystemOverdraft)
	assert.Equal(t, 5, cfg.TransferRateLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.RelayBatchSize)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOCK_TIMEOUT", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "LOCK_TIMEOUT")

	t.Setenv("LOCK_TIMEOUT", "")
	t.Setenv("STRICT_LEDGER_CHECK", "maybe")
	_, err = Load()
	assert.ErrorContains(t, err, "STRICT_LEDGER_CHECK")
}
