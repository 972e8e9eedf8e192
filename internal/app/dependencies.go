// Package app assembles the console: shared clients, the router and the
// per-session state hooks.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/petlog-console/internal/cache"
	"github.com/noah-isme/petlog-console/internal/config"
	"github.com/noah-isme/petlog-console/internal/health"
	"github.com/noah-isme/petlog-console/internal/lock"
	"github.com/noah-isme/petlog-console/internal/money"
	"github.com/noah-isme/petlog-console/internal/obs"
	"github.com/noah-isme/petlog-console/internal/petlogapi"
	"github.com/noah-isme/petlog-console/internal/ratelimit"
	"github.com/noah-isme/petlog-console/internal/resilience"
)

// Dependencies enumerates the clients shared across modules.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Redis        *redis.Client
	API          *petlogapi.Client
	Breaker      *resilience.Breaker
	Validator    *validator.Validate
	LimiterStore limiter.Store
	Cache        *cache.Cache
	Locker       lock.Locker
	Formatter    money.Formatter
	Registerer   prometheus.Registerer
	Gatherer     prometheus.Gatherer
	Readiness    *health.Readiness
}

// Options overrides pieces of the dependency graph, mostly for tests.
type Options struct {
	// Registry replaces the default Prometheus registry.
	Registry *prometheus.Registry
}

// OpenRedis connects to cfg.RedisURL and instruments the client.
func OpenRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewDependencies wires the upstream client, limiter store and metrics around rdb.
func NewDependencies(cfg *config.Config, logger zerolog.Logger, rdb *redis.Client, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if rdb == nil {
		return nil, errors.New("app: redis client is required")
	}
	var (
		reg    prometheus.Registerer = prometheus.DefaultRegisterer
		gather prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		reg, gather = opts.Registry, opts.Registry
	}
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, reg)
	resilience.MustRegisterMetrics(reg)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "petlog-api",
		Window:       cfg.BreakerWindow,
		FailureRatio: cfg.BreakerFailureRate,
		OpenFor:      cfg.BreakerCooldown,
		Logger:       logger,
	})
	apiLogger := logger.With().Str("component", "petlogapi").Logger()
	api, err := petlogapi.New(petlogapi.Config{
		BaseURL:     cfg.PetlogAPIURL,
		Timeout:     cfg.UpstreamTimeout,
		MaxAttempts: cfg.UpstreamMaxAttempts,
		BaseBackoff: cfg.UpstreamBackoff,
		Breaker:     breaker,
		Logger:      &apiLogger,
	})
	if err != nil {
		return nil, err
	}
	store, err := ratelimit.NewRedisStore(rdb, "petlog:rl:writes")
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return &Dependencies{
		Config:       cfg,
		Logger:       logger,
		Redis:        rdb,
		API:          api,
		Breaker:      breaker,
		Validator:    validator.New(),
		LimiterStore: store,
		Cache:        cache.New(rdb, cfg.CatalogCacheTTL),
		Locker:       lock.Locker{R: rdb, Prefix: "petlog:lock:"},
		Formatter:    money.NewFormatter(cfg.CurrencyLocale, cfg.CurrencySuffix),
		Registerer:   reg,
		Gatherer:     gather,
		Readiness:    &health.Readiness{},
	}, nil
}

// readinessChecker probes the session store and the PetLog API.
type readinessChecker struct {
	redis *redis.Client
	api   *petlogapi.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingUpstream(ctx context.Context, timeout time.Duration) error {
	if c.api == nil {
		return errors.New("petlog api not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.api.Ping(ctx)
}
