package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	LogLevel    string
	Port        string
	DatabaseURL string

	WebhookSecret       string
	WebhookMaxBodyBytes int64
	StorageBaseURL      string

	IdempotencyBackend       string
	IdempotencyWindow        time.Duration
	IdempotencySweepInterval time.Duration

	CorrelationFallbackEnabled bool
	CorrelationLookback        time.Duration
	OwnerFallback              string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NotificationStream  string
	NotificationChannel string
	WorkerPollInterval  time.Duration
	WorkerBatchSize     int
	WorkerMaxAttempts   int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	GeoIPDBPath      string
}

const (
	IdempotencyMemory   = "memory"
	IdempotencyRedis    = "redis"
	IdempotencyPostgres = "postgres"

	OwnerFallbackEarliestUser = "earliest_user"
	OwnerFallbackNone         = "none"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookMaxBodyBytes: int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 5<<20)),
		StorageBaseURL:      os.Getenv("STORAGE_BASE_URL"),

		IdempotencyBackend:       strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", IdempotencyMemory)),
		IdempotencyWindow:        getEnvDuration("IDEMPOTENCY_WINDOW", 5*time.Minute),
		IdempotencySweepInterval: getEnvDuration("IDEMPOTENCY_SWEEP_INTERVAL", time.Minute),

		CorrelationFallbackEnabled: getEnvBool("CORRELATION_FALLBACK_ENABLED", true),
		CorrelationLookback:        getEnvDuration("CORRELATION_LOOKBACK", time.Hour),
		OwnerFallback:              strings.ToLower(getEnv("OWNER_FALLBACK", OwnerFallbackEarliestUser)),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		NotificationStream:  getEnv("NOTIFICATION_STREAM", "notifications"),
		NotificationChannel: getEnv("NOTIFICATION_CHANNEL", "notification_created"),
		WorkerPollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerBatchSize:     getEnvInt("WORKER_BATCH_SIZE", 50),
		WorkerMaxAttempts:   getEnvInt("WORKER_MAX_ATTEMPTS", 3),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 100),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
	}

	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = fmt.Sprintf("http://localhost:%s/static", cfg.Port)
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if cfg.WebhookSecret == "" {
			return nil, fmt.Errorf("WEBHOOK_SECRET is required outside development")
		}
	}

	switch cfg.IdempotencyBackend {
	case IdempotencyMemory, IdempotencyPostgres:
	case IdempotencyRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis idempotency backend")
		}
	default:
		return nil, fmt.Errorf("unsupported IDEMPOTENCY_BACKEND %q", cfg.IdempotencyBackend)
	}
	if cfg.IdempotencyBackend == IdempotencyPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres idempotency backend")
	}

	switch cfg.OwnerFallback {
	case OwnerFallbackEarliestUser, OwnerFallbackNone:
	default:
		return nil, fmt.Errorf("unsupported OWNER_FALLBACK %q", cfg.OwnerFallback)
	}

	return cfg, nil
}

// IsDevelopment reports whether the shared-secret check is bypassed.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "test", "local":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}
