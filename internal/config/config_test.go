package config_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/petlog-console/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"PETLOG_API_URL":  "https://api.petlog.vn/api",
		"REDIS_URL":       "redis://localhost:6379/0",
		"CURRENCY_LOCALE": "",
		"SESSION_TTL":     "",
		"COOKIE_SAMESITE": "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "vi", cfg.CurrencyLocale)
	require.Equal(t, "đ", cfg.CurrencySuffix)
	require.Equal(t, 12*time.Hour, cfg.SessionTTL)
	require.Equal(t, time.Minute, cfg.SessionSweepInterval)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.Equal(t, 3, cfg.UpstreamMaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.False(t, cfg.PprofEnabled)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"PETLOG_API_URL":          "http://localhost:3001/api",
		"REDIS_URL":               "redis://localhost:6379/1",
		"PORT":                    ":9090",
		"CURRENCY_LOCALE":         "en",
		"PETLOG_API_MAX_ATTEMPTS": "1",
		"QUOTE_TIMEOUT":           "nonsense",
		"SESSION_TTL":             "48h",
		"SESSION_MAX_TTL":         "1h",
		"COOKIE_SECURE":           "yes",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "en", cfg.CurrencyLocale)
	require.Equal(t, 1, cfg.UpstreamMaxAttempts)
	require.Equal(t, 15*time.Second, cfg.QuoteTimeout)
	require.Equal(t, 48*time.Hour, cfg.SessionMaxTTL, "max ttl never below the default ttl")
	require.True(t, cfg.CookieSecure)
}

func TestLoadRequiresUpstream(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"PETLOG_API_URL": "",
		"REDIS_URL":      "redis://localhost:6379/0",
	})
	require.EqualError(t, err, "PETLOG_API_URL is required")
}
