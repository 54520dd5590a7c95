package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PAGERDUTY_API_KEY", "key")
	t.Setenv("DB_DSN", "postgres://localhost/pd")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.pagerduty.com", cfg.PagerDuty.BaseURL)
	assert.Equal(t, 25, cfg.PagerDuty.PageLimit)
	assert.Equal(t, 5, cfg.PagerDuty.MaxRetries)
	assert.Equal(t, time.Second, cfg.PagerDuty.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.PagerDuty.MaxDelay)
	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "/api/v1", cfg.API.BasePath)
	assert.Equal(t, 30, cfg.Analytics.LookbackDays)
	assert.Equal(t, 30, cfg.Analytics.LookaheadDays)
}

func TestLoadReportsMissingRequired(t *testing.T) {
	t.Setenv("PAGERDUTY_API_KEY", "")
	t.Setenv("DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAGERDUTY_API_KEY")
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadReadsOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PAGERDUTY_PAGE_LIMIT", "100")
	t.Setenv("PAGERDUTY_RETRY_DELAY", "250ms")
	t.Setenv("API_PORT", ":9000")
	t.Setenv("INACTIVE_LOOKBACK_DAYS", "14")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.PagerDuty.PageLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.PagerDuty.RetryDelay)
	assert.Equal(t, ":9000", cfg.API.Port)
	assert.Equal(t, 14, cfg.Analytics.LookbackDays)
}

func TestLoadParsesTelegramChatIDs(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_CHAT_IDS", "123, 456,789")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{123, 456, 789}, cfg.Telegram.ChatIDs)
}

func TestLoadRejectsBadChatID(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_CHAT_IDS", "123,abc")

	_, err := Load()
	assert.Error(t, err)
}
