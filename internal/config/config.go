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
)

// Cart storage backends.
const (
	CartBackendMemory = "memory"
	CartBackendRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessCookie       string
	CORSAllowedOrigins []string

	CartBackend       string
	CartTTL           time.Duration
	CartSweepInterval time.Duration
	CurrencyCode      string
	LockTTL           time.Duration

	PurchaseAPIURL   string
	OutboundTimeout  time.Duration
	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	RetryJitter      float64
	CircuitMinReqs   int
	CircuitFailRatio float64
	CircuitOpenFor   time.Duration

	CouponRateLimitWindow time.Duration
	CouponRateLimitMax    int
	RateLimitBackend      string

	IdempotencyTTL time.Duration
	BodyLimitBytes int64

	WorkerConcurrency int

	ObsLogFormat      string
	ObsLogLevel       string
	ObsMetricsEnabled bool
	ObsMetricsBuckets string
	ObsTracingEnabled bool
	ObsTraceExporter  string
	ObsTraceEndpoint  string
	ObsTraceSampling  float64
	ObsServiceName    string
	ObsPprofEnabled   bool
	PprofUser         string
	PprofPass         string
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
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "kreatif-catalog"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "kreatif-storefront"),
		AccessCookie:       strings.TrimSpace(k.String("AUTH_ACCESS_COOKIE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CartBackend:       strings.ToLower(valueOrDefault(k.String("CART_BACKEND"), CartBackendMemory)),
		CartTTL:           parseDuration(k.String("CART_TTL"), "72h"),
		CartSweepInterval: parseDuration(k.String("CART_SWEEP_INTERVAL"), "5m"),
		CurrencyCode:      strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "IDR")),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "5s"),

		PurchaseAPIURL:   strings.TrimRight(strings.TrimSpace(k.String("PURCHASE_API_URL")), "/"),
		OutboundTimeout:  parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
		RetryMaxAttempts: parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBaseBackoff: parseDuration(k.String("RETRY_BASE_BACKOFF"), "200ms"),
		RetryJitter:      parseFloat(k.String("RETRY_JITTER"), 0.2),
		CircuitMinReqs:   parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:   parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		CouponRateLimitWindow: parseDuration(k.String("COUPON_RATE_LIMIT_WINDOW"), "1m"),
		CouponRateLimitMax:    parseInt(k.String("COUPON_RATE_LIMIT_MAX"), 10),
		RateLimitBackend:      strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "memory")),

		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes: int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),

		ObsLogFormat:      valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		ObsLogLevel:       valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		ObsMetricsEnabled: parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		ObsMetricsBuckets: k.String("OBS_METRICS_BUCKETS_MS"),
		ObsTracingEnabled: parseBool(k.String("OBS_TRACING_ENABLED")),
		ObsTraceExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		ObsTraceEndpoint:  k.String("OBS_TRACING_ENDPOINT"),
		ObsTraceSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		ObsServiceName:    valueOrDefault(k.String("OBS_SERVICE_NAME"), "kreatif-cart"),
		ObsPprofEnabled:   parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.CartBackend {
	case CartBackendMemory:
	case CartBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when CART_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CART_BACKEND must be memory or redis, got %q", c.CartBackend)
	}
	if c.RateLimitBackend != "memory" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=%s", c.RateLimitBackend)
	}
	return nil
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

// CheckoutEnabled reports whether a purchase backend is configured.
func (c *Config) CheckoutEnabled() bool {
	return c.PurchaseAPIURL != ""
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
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
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
