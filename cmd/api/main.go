package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kreatif/internal/auth"
	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/checkout"
	"github.com/noah-isme/backend-kreatif/internal/common"
	"github.com/noah-isme/backend-kreatif/internal/config"
	"github.com/noah-isme/backend-kreatif/internal/coupon"
	"github.com/noah-isme/backend-kreatif/internal/db"
	"github.com/noah-isme/backend-kreatif/internal/health"
	"github.com/noah-isme/backend-kreatif/internal/lock"
	"github.com/noah-isme/backend-kreatif/internal/obs"
	"github.com/noah-isme/backend-kreatif/internal/ratelimit"
	"github.com/noah-isme/backend-kreatif/internal/receipt"
	"github.com/noah-isme/backend-kreatif/internal/resilience"
	"github.com/noah-isme/backend-kreatif/internal/security"
	"github.com/noah-isme/backend-kreatif/internal/session"
)

const metricsNamespace = "kreatif"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.ObsTracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   cfg.ObsServiceName,
			Endpoint:      cfg.ObsTraceEndpoint,
			Exporter:      cfg.ObsTraceExporter,
			SamplingRatio: cfg.ObsTraceSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	probes := map[string]health.Probe{}

	var couponRepo coupon.Repository
	if cfg.DatabaseURL != "" {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		pool := mustInitDatabase(ctx, cfg, logger)
		defer pool.Close()
		couponRepo = coupon.PostgresRepository{DB: pool}
		probes["db"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	} else {
		logger.Warn().Msg("DATABASE_URL not set, coupons kept in memory")
		couponRepo = coupon.NewMemoryRepository()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = mustInitRedis(ctx, cfg, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var sessions *session.Manager
	switch cfg.CartBackend {
	case config.CartBackendRedis:
		sessions = session.NewManager(
			session.RedisBackend{Client: redisClient, Prefix: "cart:", TTL: cfg.CartTTL},
			lock.RedisLocker{R: redisClient, Prefix: "lock:"},
			cfg.LockTTL,
		)
	default:
		backend := session.NewMemoryBackend(cfg.CartTTL)
		go backend.RunJanitor(ctx, cfg.CartSweepInterval, obs.ObserveSessionsSwept)
		sessions = session.NewManager(backend, nil, cfg.LockTTL)
	}

	verifier, err := auth.NewVerifier(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: cfg.AccessCookie}
	resolver := session.Resolver{}

	couponSvc := &coupon.Service{Repo: couponRepo}
	couponHandler := &coupon.Handler{Repo: couponRepo, Svc: couponSvc}
	cartHandler := &cart.Handler{
		Sessions:     sessions,
		Coupons:      couponSvc,
		Currency:     cfg.CurrencyCode,
		AnonymousKey: resolver.AnonymousKey,
	}

	var receipts checkout.ReceiptPublisher
	if redisClient != nil {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse asynq redis uri")
		}
		taskClient := asynq.NewClient(redisOpt)
		defer func() { _ = taskClient.Close() }()
		receipts = receipt.Enqueuer{Client: taskClient}
	}

	var checkoutHandler http.HandlerFunc = func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "checkout not configured", nil)
	}
	if cfg.CheckoutEnabled() {
		purchaseClient := &resilience.HTTPClient{
			Client: resilience.NewTracedClient(cfg.OutboundTimeout),
			Breaker: resilience.NewBreaker(cfg.CircuitMinReqs, cfg.CircuitFailRatio, cfg.CircuitOpenFor).
				WithTarget("purchase_api").
				WithLogger(logger),
			BaseBackoff: cfg.RetryBaseBackoff,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.OutboundTimeout,
		}
		h := &checkout.Handler{Svc: &checkout.Service{
			Sessions:  sessions,
			Purchases: checkout.HTTPPurchaser{BaseURL: cfg.PurchaseAPIURL, Client: purchaseClient},
			Coupons:   couponSvc,
			Receipts:  receipts,
			Currency:  cfg.CurrencyCode,
		}}
		checkoutHandler = h.Checkout
	}

	limiter, err := ratelimit.New(cfg.RateLimitBackend, redisClient, "rl:coupon:")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	couponLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: common.CallerKey, Window: cfg.CouponRateLimitWindow, Max: cfg.CouponRateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("coupon rate limit unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if cfg.ObsMetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(cfg.ObsMetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins, session.HeaderName))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.ObsPprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{Probes: probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMiddleware.Authenticate)
		if cfg.AccessCookie != "" {
			v.Use(security.CSRF{SessionCookie: cfg.AccessCookie}.Middleware)
		}

		v.Route("/cart", func(c chi.Router) {
			c.Use(resolver.Middleware)
			c.Get("/", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Delete("/", cartHandler.Clear)
				g.Post("/items", cartHandler.AddItem)
				g.Delete("/items/{kind}/{id}", cartHandler.RemoveItem)
				g.Put("/coupon-code", cartHandler.SetCouponCode)
				g.With(couponLimit.Middleware).Post("/coupon", cartHandler.ApplyCoupon)
				g.Delete("/coupon", cartHandler.RemoveCoupon)
				g.With(authMiddleware.RequireAuth).Post("/merge", cartHandler.Merge)
				g.With(authMiddleware.RequireAuth).Post("/checkout", checkoutHandler)
			})
		})

		v.Route("/admin/coupons", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireRole("admin"))
			admin.Get("/", couponHandler.List)
			admin.Post("/", couponHandler.Create)
			admin.Post("/preview", couponHandler.Preview)
			admin.Get("/{code}", couponHandler.Get)
			admin.Put("/{code}", couponHandler.Update)
			admin.Delete("/{code}", couponHandler.Delete)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return logger.WithContext(context.Background()) },
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("cart_backend", cfg.CartBackend).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ObsServiceName

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.ObsMetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// newPprofMux serves the runtime profiles. Paths keep the /debug/pprof
// prefix because chi's Mount leaves r.URL.Path untouched.
func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
