package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/config"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/db"
	"github.com/bazaar-labs/bazaar-api/internal/events"
	"github.com/bazaar-labs/bazaar-api/internal/geocode"
	"github.com/bazaar-labs/bazaar-api/internal/jobs"
	"github.com/bazaar-labs/bazaar-api/internal/obs"
	"github.com/bazaar-labs/bazaar-api/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	bus := &events.Bus{
		Store:     events.Store{DB: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Log: logger}},
	}
	addressSvc := address.Service{
		Store: address.Store{DB: pool},
		Geocoder: geocode.Metered{Next: geocode.Client{
			BaseURL: cfg.GeocoderBaseURL,
			HTTP: resilience.HTTPClient{
				Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("geocoder"),
				BaseBackoff: 200 * time.Millisecond,
				MaxAttempts: 3,
				Jitter:      0.2,
				Timeout:     cfg.GeocodeTimeout,
			},
		}},
		GeocodeTimeout: cfg.GeocodeTimeout,
		Log:            logger,
	}

	handlers := jobs.Handlers{
		Coupons:      coupon.Store{DB: pool},
		Addresses:    addressSvc,
		Bus:          bus,
		DefaultBatch: cfg.GeocodeSweepBatch,
		Log:          logger,
	}

	backfillTask, err := jobs.NewGeocodeBackfillTask(cfg.GeocodeSweepBatch)
	if err != nil {
		logger.Fatal().Err(err).Msg("build backfill task")
	}
	scheduler, err := jobs.NewScheduler(redisOpts, []jobs.ScheduleEntry{
		{Every: cfg.CouponSweepEvery, Task: jobs.NewCouponExpireSweepTask()},
		{Every: cfg.GeocodeSweepEvery, Task: backfillTask},
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure scheduler")
	}

	srv := asynq.NewServer(redisOpts, asynq.Config{Concurrency: 4})

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Shutdown()

	if err := srv.Start(jobs.NewMux(handlers)); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	logger.Info().Msg("worker started")
	<-ctx.Done()

	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
