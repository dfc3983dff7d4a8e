// Package config loads all runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/bazaar-labs/bazaar-api/internal/delivery"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	LogFormat string
	LogLevel  string

	MetricsNamespace string
	OTLPEndpoint     string
	TraceSampling    float64

	GeocoderBaseURL string
	GeocodeTimeout  time.Duration

	CheckoutLockTTL     time.Duration
	RateLimitWindow     time.Duration
	RateLimitMax        int
	BodyLimitBytes      int64
	CouponSweepEvery    time.Duration
	GeocodeSweepEvery   time.Duration
	GeocodeSweepBatch   int32
	ShutdownGracePeriod time.Duration

	Delivery delivery.Calculator
}

// Load reads configuration from environment variables and optional .env
// files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "bazaar"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OTLP_ENDPOINT")),
		TraceSampling:    parseFloat(k.String("TRACE_SAMPLING"), 1),

		GeocoderBaseURL: strings.TrimSpace(k.String("GEOCODER_BASE_URL")),
		GeocodeTimeout:  parseDuration(k.String("GEOCODE_TIMEOUT"), "3s"),

		CheckoutLockTTL:     parseDuration(k.String("CHECKOUT_LOCK_TTL"), "10s"),
		RateLimitWindow:     parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:        int(parseInt(k.String("RATE_LIMIT_MAX"), 120)),
		BodyLimitBytes:      parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20),
		CouponSweepEvery:    parseDuration(k.String("COUPON_SWEEP_EVERY"), "1m"),
		GeocodeSweepEvery:   parseDuration(k.String("GEOCODE_SWEEP_EVERY"), "5m"),
		GeocodeSweepBatch:   int32(parseInt(k.String("GEOCODE_SWEEP_BATCH"), 50)),
		ShutdownGracePeriod: parseDuration(k.String("SHUTDOWN_GRACE_PERIOD"), "15s"),

		Delivery: delivery.Calculator{
			BaseCharge:         pricing.Money(parseInt(k.String("DELIVERY_BASE_CHARGE"), 5000)),
			BaseDistanceKm:     parseFloat(k.String("DELIVERY_BASE_DISTANCE_KM"), 2),
			PerKmCharge:        pricing.Money(parseInt(k.String("DELIVERY_PER_KM_CHARGE"), 1000)),
			FallbackCharge:     pricing.Money(parseInt(k.String("DELIVERY_FALLBACK_CHARGE"), 5000)),
			LongHaulFallback:   pricing.Money(parseInt(k.String("DELIVERY_LONG_HAUL_FALLBACK"), 20000)),
			DefaultRadiusKm:    parseFloat(k.String("DELIVERY_DEFAULT_RADIUS_KM"), 5),
			DefaultWeightGrams: int(parseInt(k.String("DELIVERY_DEFAULT_WEIGHT_GRAMS"), 200)),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
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
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for command
// entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without
// touching the real environment.
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
