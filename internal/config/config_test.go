package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://test.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite://test.db", cfg.DatabaseURL)
	assert.Equal(t, 20, cfg.DailyQuota)
	assert.Equal(t, int64(5), cfg.ReferrerCredits)
	assert.Equal(t, int64(3), cfg.ReferredQuota)
	assert.Equal(t, 24*time.Hour, cfg.ReceiptTTL)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DAILY_QUOTA", "30")
	t.Setenv("RECEIPT_TTL", "2h")
	t.Setenv("SWIPE_RPS", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.DailyQuota)
	assert.Equal(t, 2*time.Hour, cfg.ReceiptTTL)
	assert.Equal(t, 0.5, cfg.SwipeRPS)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	cases := map[string]string{
		"DAILY_QUOTA":      "twenty",
		"REFERRER_CREDITS": "-1",
		"RECEIPT_TTL":      "forever",
		"MESSAGE_RPS":      "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadRejectsZeroQuota(t *testing.T) {
	t.Setenv("DAILY_QUOTA", "0")
	_, err := Load()
	require.Error(t, err)
}
