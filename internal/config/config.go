package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds console configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	PetlogAPIURL       string
	RedisURL           string
	CORSAllowedOrigins []string

	UpstreamTimeout     time.Duration
	UpstreamMaxAttempts int
	UpstreamBackoff     time.Duration
	BreakerWindow       int
	BreakerFailureRate  float64
	BreakerCooldown     time.Duration
	QuoteTimeout        time.Duration
	QuoteMaxWait        time.Duration
	CatalogCacheTTL     time.Duration

	CurrencyLocale string
	CurrencySuffix string

	SessionTTL           time.Duration
	SessionMaxTTL        time.Duration
	SessionSweepInterval time.Duration
	IdempotencyTTL       time.Duration

	QuoteRateLimit  int
	QuoteRateWindow time.Duration
	WriteRateLimit  int
	WriteRateWindow time.Duration
	BodyLimitBytes  int64

	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	SecurityHeaders bool
	EnableHSTS      bool

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64

	PprofEnabled bool
	PprofUser    string
	PprofPass    string
	Version      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		PetlogAPIURL:       strings.TrimSpace(k.String("PETLOG_API_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		UpstreamTimeout:     parseDuration(k.String("PETLOG_API_TIMEOUT"), "10s"),
		UpstreamMaxAttempts: parseInt(k.String("PETLOG_API_MAX_ATTEMPTS"), 3),
		UpstreamBackoff:     parseDuration(k.String("PETLOG_API_BACKOFF"), "150ms"),
		BreakerWindow:       parseInt(k.String("BREAKER_WINDOW"), 20),
		BreakerFailureRate:  parseFloat(k.String("BREAKER_FAILURE_RATE"), 0.5),
		BreakerCooldown:     parseDuration(k.String("BREAKER_COOLDOWN"), "30s"),
		QuoteTimeout:        parseDuration(k.String("QUOTE_TIMEOUT"), "15s"),
		QuoteMaxWait:        parseDuration(k.String("QUOTE_MAX_WAIT"), "10s"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		CurrencyLocale: valueOrDefault(k.String("CURRENCY_LOCALE"), "vi"),
		CurrencySuffix: valueOrDefault(k.String("CURRENCY_SUFFIX"), "đ"),

		SessionTTL:           parseDuration(k.String("SESSION_TTL"), "12h"),
		SessionMaxTTL:        parseDuration(k.String("SESSION_MAX_TTL"), "168h"),
		SessionSweepInterval: parseDuration(k.String("SESSION_SWEEP_INTERVAL"), "1m"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		QuoteRateLimit:  parseInt(k.String("RATE_LIMIT_QUOTES"), 120),
		QuoteRateWindow: parseDuration(k.String("RATE_LIMIT_QUOTES_WINDOW"), "1m"),
		WriteRateLimit:  parseInt(k.String("RATE_LIMIT_WRITES"), 20),
		WriteRateWindow: parseDuration(k.String("RATE_LIMIT_WRITES_WINDOW"), "1m"),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 16<<10)),

		CookieDomain:   strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:   parseBool(k.String("COOKIE_SECURE"), false),
		CookieSameSite: parseSameSite(k.String("COOKIE_SAMESITE")),

		SecurityHeaders: parseBool(k.String("SECURITY_HEADERS"), true),
		EnableHSTS:      parseBool(k.String("SECURITY_HSTS"), false),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "petlog"),
		MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),

		PprofEnabled: parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:    strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:    strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		Version:      valueOrDefault(k.String("APP_VERSION"), "dev"),
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.SessionMaxTTL < cfg.SessionTTL {
		cfg.SessionMaxTTL = cfg.SessionTTL
	}

	if cfg.PetlogAPIURL == "" {
		return nil, errors.New("PETLOG_API_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the console runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
