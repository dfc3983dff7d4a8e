package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/cart"
	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/common"
	"github.com/bazaar-labs/bazaar-api/internal/config"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/db"
	"github.com/bazaar-labs/bazaar-api/internal/events"
	"github.com/bazaar-labs/bazaar-api/internal/geocode"
	"github.com/bazaar-labs/bazaar-api/internal/health"
	"github.com/bazaar-labs/bazaar-api/internal/lock"
	"github.com/bazaar-labs/bazaar-api/internal/obs"
	"github.com/bazaar-labs/bazaar-api/internal/order"
	"github.com/bazaar-labs/bazaar-api/internal/ratelimit"
	"github.com/bazaar-labs/bazaar-api/internal/resilience"
	"github.com/bazaar-labs/bazaar-api/internal/reviews"
	"github.com/bazaar-labs/bazaar-api/internal/security"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "bazaar-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: cfg.TraceSampling,
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(initCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(initCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()

	var geocoder geocode.Geocoder = geocode.Metered{Next: geocode.Client{
		BaseURL: cfg.GeocoderBaseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("geocoder"),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     cfg.GeocodeTimeout,
		},
	}}

	catalogSvc := catalog.Service{
		Store: catalog.Store{DB: pool},
		Cache: catalog.NewCache(redisClient, envDuration("CATALOG_CACHE_TTL", 5*time.Minute)),
		Log:   componentLogger(logger, "catalog"),
	}
	vendorSvc := vendor.Service{
		Store:          vendor.Store{DB: pool},
		Geocoder:       geocoder,
		GeocodeTimeout: cfg.GeocodeTimeout,
		Log:            componentLogger(logger, "vendor"),
	}
	addressSvc := address.Service{
		Store:          address.Store{DB: pool},
		Geocoder:       geocoder,
		GeocodeTimeout: cfg.GeocodeTimeout,
		Log:            componentLogger(logger, "address"),
	}
	couponSvc := coupon.Service{Store: coupon.Store{DB: pool}}
	cartSvc := cart.Service{
		Store:      cart.Store{DB: pool},
		Products:   catalogSvc,
		Coupons:    couponSvc,
		Vendors:    vendorSvc,
		Addresses:  addressSvc,
		Calculator: cfg.Delivery,
		Log:        componentLogger(logger, "cart"),
	}

	bus := &events.Bus{
		Store:     events.Store{DB: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Log: componentLogger(logger, "events")}},
	}

	orderSvc := order.Service{
		Store:      order.Store{Pool: pool},
		Carts:      cart.Store{DB: pool},
		Vendors:    vendorSvc,
		Addresses:  addressSvc,
		Calculator: cfg.Delivery,
		Bus:        bus,
		Lock:       lock.Locker{R: redisClient},
		LockTTL:    cfg.CheckoutLockTTL,
		Log:        componentLogger(logger, "order"),
	}
	reviewsSvc := reviews.Service{Store: reviews.Store{DB: pool}, Products: catalogSvc}

	catalogHandler := &catalog.Handler{Svc: catalogSvc, Validate: validate}
	vendorHandler := &vendor.Handler{Svc: vendorSvc, Validate: validate}
	addressHandler := &address.Handler{Svc: addressSvc, Validate: validate}
	cartHandler := &cart.Handler{Svc: cartSvc, Validate: validate}
	couponHandler := &coupon.Handler{Svc: couponSvc, Validate: validate}
	orderHandler := order.Handler{Svc: orderSvc, Vendors: vendorSvc, Validate: validate}
	reviewsHandler := reviews.Handler{Svc: reviewsSvc, Validate: validate}

	idem := common.Idem{R: redisClient, TTL: envDuration("IDEMPOTENCY_TTL", 24*time.Hour)}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByUser,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter degraded")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(common.Identity)
	r.Use(limiter.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", newPprofMux())
	}

	healthHandler := health.Handler{
		Checker: health.Probes{Pool: pool, Redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.ListProducts)
		v.Get("/products/{productID}", catalogHandler.GetProduct)
		v.Get("/products/{productID}/reviews", reviewsHandler.List)
		v.Get("/categories", catalogHandler.ListCategories)
		v.Get("/vendors", vendorHandler.List)
		v.Get("/vendors/{vendorID}", vendorHandler.Get)

		v.Group(func(buyer chi.Router) {
			buyer.Use(common.RequireUser)

			buyer.Route("/addresses", func(a chi.Router) {
				a.Get("/", addressHandler.List)
				a.Post("/", addressHandler.Create)
				a.Put("/{addressID}", addressHandler.Update)
				a.Delete("/{addressID}", addressHandler.Delete)
			})

			buyer.Route("/cart", func(c chi.Router) {
				c.Get("/", cartHandler.Get)
				c.Post("/items", cartHandler.AddItem)
				c.Put("/items/{productID}", cartHandler.UpdateItem)
				c.Delete("/items/{productID}", cartHandler.RemoveItem)
				c.Post("/coupon", cartHandler.ApplyCoupon)
				c.Delete("/coupon", cartHandler.RemoveCoupon)
				c.Post("/quote/delivery", cartHandler.QuoteDelivery)
			})

			buyer.Post("/checkout/preview", orderHandler.PreviewCheckout)
			buyer.With(idem.Middleware).Post("/checkout", orderHandler.Checkout)
			buyer.Get("/orders", orderHandler.List)
			buyer.Get("/orders/{orderID}", orderHandler.Get)
			buyer.Post("/orders/{orderID}/cancel", orderHandler.Cancel)

			buyer.Post("/products/{productID}/reviews", reviewsHandler.Create)
			buyer.Delete("/reviews/{reviewID}", reviewsHandler.Delete)
		})

		v.Group(func(seller chi.Router) {
			seller.Use(common.RequireRole("vendor", "admin"))
			seller.Post("/vendors", vendorHandler.Create)
			seller.Put("/vendors/{vendorID}", vendorHandler.Update)
			seller.Post("/vendors/{vendorID}/products", catalogHandler.CreateProduct)
			seller.Put("/vendors/{vendorID}/products/{productID}", catalogHandler.UpdateProduct)
			seller.Get("/vendors/{vendorID}/orders", orderHandler.VendorList)
			seller.Patch("/vendors/{vendorID}/orders/{orderID}/status", orderHandler.VendorSetStatus)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(common.RequireRole("admin"))
			admin.Post("/categories", catalogHandler.CreateCategory)
			admin.Post("/coupons", couponHandler.Create)
			admin.Get("/coupons", couponHandler.List)
			admin.Get("/coupons/{couponID}", couponHandler.Get)
			admin.Put("/coupons/{couponID}", couponHandler.Update)
			admin.Post("/coupons/preview", couponHandler.Preview)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("grace", cfg.ShutdownGracePeriod).Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func componentLogger(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
