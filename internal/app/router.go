package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/petlog-console/internal/checkout"
	"github.com/noah-isme/petlog-console/internal/common"
	"github.com/noah-isme/petlog-console/internal/health"
	"github.com/noah-isme/petlog-console/internal/obs"
	"github.com/noah-isme/petlog-console/internal/quote"
	"github.com/noah-isme/petlog-console/internal/ratelimit"
	"github.com/noah-isme/petlog-console/internal/security"
	"github.com/noah-isme/petlog-console/internal/session"
)

const hstsMaxAge = 365 * 24 * 60 * 60

// Server is the assembled HTTP surface and the per-session state it owns.
type Server struct {
	Handler  http.Handler
	Sessions *session.Manager
	Quotes   *quote.Registry
	Checkout *checkout.Service
}

// NewServer builds the router over d. Ending a session drops its quote
// trackers and checkout drafts.
func NewServer(d *Dependencies) *Server {
	cfg := d.Config
	logger := d.Logger

	sessions := &session.Manager{
		Store:      session.RedisStore{Client: d.Redis},
		DefaultTTL: cfg.SessionTTL,
		MaxTTL:     cfg.SessionMaxTTL,
	}
	quoteLogger := logger.With().Str("component", "quote").Logger()
	quotes := &quote.Registry{
		API: func(s session.Session) quote.API {
			return quote.CachedCatalog(d.API.WithToken(s.Token), d.Cache, s.HotelID)
		},
		Timeout: cfg.QuoteTimeout,
		Logger:  &quoteLogger,
	}
	checkoutSvc := &checkout.Service{
		API:    func(s session.Session) checkout.API { return d.API.WithToken(s.Token) },
		Guard:  d.Locker,
		Logger: logger.With().Str("component", "checkout").Logger(),
	}
	sessions.OnEnd(quotes.Drop)
	sessions.OnEnd(checkoutSvc.DropSession)

	sessionHandler := &session.Handler{
		Manager:        sessions,
		Validate:       d.Validator,
		Logger:         logger,
		CookieSecure:   cfg.CookieSecure,
		CookieDomain:   cfg.CookieDomain,
		CookieSameSite: cfg.CookieSameSite,
	}
	quoteHandler := &quote.Handler{
		Registry:  quotes,
		Validate:  d.Validator,
		Formatter: d.Formatter,
		Logger:    quoteLogger,
		MaxWait:   cfg.QuoteMaxWait,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: d.Validator, Formatter: d.Formatter}
	healthHandler := health.Handler{
		Checker:         readinessChecker{redis: d.Redis, api: d.API},
		Readiness:       d.Readiness,
		RedisTimeout:    300 * time.Millisecond,
		UpstreamTimeout: 2 * time.Second,
	}

	onLimiterError := func(err error) { logger.Warn().Err(err).Msg("rate_limiter_unavailable") }
	quoteLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: d.Redis, Prefix: "petlog:rl:quotes:"},
		Config:  ratelimit.Config{Key: session.ScopeKey, Window: cfg.QuoteRateWindow, Max: cfg.QuoteRateLimit},
		OnError: onLimiterError,
	}
	writeLimit := ratelimit.Handler{
		Limiter: ratelimit.Fixed{Store: d.LimiterStore},
		Config:  ratelimit.Config{Key: session.ScopeKey, Window: cfg.WriteRateWindow, Max: cfg.WriteRateLimit},
		OnError: onLimiterError,
	}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL, Scope: session.ScopeKey}
	csrf := security.CSRF{TrustedHeader: session.HeaderName, Secure: cfg.CookieSecure}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, d.Registerer)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, Attrs: requestAttrs}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-CSRF-Token", session.HeaderName},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.EnableHSTS, HSTSMaxAge: hstsMaxAge, NoStore: true}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.PprofEnabled {
		r.Mount(pprofPrefix, protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Post("/session", sessionHandler.Start)

		v.Group(func(g chi.Router) {
			g.Use(csrf.Middleware)
			g.Delete("/session", sessionHandler.End)
			g.Group(func(a chi.Router) {
				a.Use(sessions.Require)

				a.Route("/bookings/{id}", func(b chi.Router) {
					b.Post("/checkout", checkoutHandler.Open)
					b.Get("/checkout", checkoutHandler.Get)
					b.Delete("/checkout", checkoutHandler.Discard)
					b.Put("/checkout/discount", checkoutHandler.SetDiscount)
					b.Put("/checkout/time", checkoutHandler.SetCheckoutTime)
					b.With(writeLimit.Middleware, idem.Middleware).Post("/checkout/confirm", checkoutHandler.Confirm)
					b.With(writeLimit.Middleware, idem.Middleware).Post("/payment", checkoutHandler.RecordPayment)
				})

				a.Route("/pricing", func(p chi.Router) {
					p.With(quoteLimit.Middleware).Post("/upgrade-quote", quoteHandler.SelectUpgrade)
					p.Get("/upgrade-quote", quoteHandler.UpgradeQuote)
					p.With(quoteLimit.Middleware).Post("/extra-rooms-quote", quoteHandler.SelectExtraRooms)
					p.Get("/extra-rooms-quote", quoteHandler.ExtraRoomsQuote)
					p.Get("/estimate", quoteHandler.Estimate)
					p.With(writeLimit.Middleware, idem.Middleware).Post("/pay", quoteHandler.Pay)
				})
			})
		})
	})

	return &Server{Handler: r, Sessions: sessions, Quotes: quotes, Checkout: checkoutSvc}
}

// Sweep drops the quote boards and checkout drafts of sessions that expired
// at or before now without being loaded again.
func (s *Server) Sweep(now time.Time) int {
	return s.Quotes.Sweep(now) + s.Checkout.Sweep(now)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				logger.Debug().Int("dropped", n).Msg("expired_sessions_swept")
			}
		}
	}
}

// requestAttrs adds the session to request logs. The session middleware runs
// inside the logger, so the id is read from the carrier, not the context.
func requestAttrs(r *http.Request) map[string]string {
	return map[string]string{"session_id": session.IDFromRequest(r)}
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
