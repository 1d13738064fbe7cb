package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRouting(t *testing.T) {
	got := ParseRouting(" out_of_stock=email, sms ;low_stock=email;broken;=x;overstock=")
	assert.Equal(t, map[string][]string{
		"out_of_stock": {"email", "sms"},
		"low_stock":    {"email"},
	}, got)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("LEDGER_RESERVATION_TTL", "90s")
	t.Setenv("LEDGER_MAX_RETRIES", "not-a-number")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ALERT_LOW_STOCK_THRESHOLD", "25")
	t.Setenv("REDIS_ENABLED", "false")

	cfg := LoadEnv()
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.Ledger.ReservationTTL)
	assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(25), cfg.Alert.LowStockThreshold)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"email", "sms"}, cfg.Alert.Routing["out_of_stock"])
}
