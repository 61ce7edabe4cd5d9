package config

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "PAYMENT_TIMEOUT", "BATCH_LOCK_TTL", "DUPLICATION_LOCK_TTL", "KAFKA_BROKERS", "AUTO_EXPIRE_ENABLED"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.PaymentTimeout)
	assert.Equal(t, 180*time.Second, cfg.BatchLockTTL)
	assert.Equal(t, 30*time.Second, cfg.DuplicationLockTTL)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.AutoExpireEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "5m")
	t.Setenv("BATCH_LOCK_TTL", "bogus")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")
	t.Setenv("AUTO_EXPIRE_ENABLED", "false")
	t.Setenv("INVENTORY_WORKERS", "3")

	cfg := Load()

	assert.Equal(t, 5*time.Minute, cfg.PaymentTimeout)
	assert.Equal(t, 180*time.Second, cfg.BatchLockTTL, "malformed duration falls back to default")
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	assert.False(t, cfg.AutoExpireEnabled)
	assert.Equal(t, 3, cfg.InventoryWorkers)
}
