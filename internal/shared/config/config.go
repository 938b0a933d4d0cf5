package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultDeliveryTimeout = 30 * time.Second

// Config holds application configuration.
type Config struct {
	Port                string        `env:"PORT" envDefault:"8080"`
	Env                 string        `env:"ENV" envDefault:"dev"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	AutoMigrate         bool          `env:"AUTO_MIGRATE" envDefault:"false"`
	CORSAllowOrigin     []string      `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	DeliveryEndpointURL string        `env:"DELIVERY_ENDPOINT_URL"`
	DeliveryTimeoutMs   int           `env:"DELIVERY_TIMEOUT_MS"`
	AdminToken          string        `env:"ADMIN_TOKEN"`
	QueueURL            string        `env:"RA_SQS_QUEUE_URL"`
	AWSRegion           string        `env:"AWS_REGION" envDefault:"us-east-1"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileBatchSize  int           `env:"RECONCILE_BATCH_SIZE" envDefault:"50"`
	SubmitRatePerMinute int           `env:"RATE_LIMIT_SUBMIT_PER_MIN" envDefault:"30"`
	// RedisURL shares rate limit windows across instances; empty keeps them in process.
	RedisURL string `env:"REDIS_URL"`
	// OTELEndpoint enables trace export over OTLP/HTTP, e.g. http://collector:4318.
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg, err := Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	return cfg
}

// Parse reads the environment into a Config without touching env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.CORSAllowOrigin = splitAndTrim(cfg.CORSAllowOrigin)

	// EXTERNAL_SERVICE_* are the names older deployments use.
	if strings.TrimSpace(cfg.DeliveryEndpointURL) == "" {
		cfg.DeliveryEndpointURL = os.Getenv("EXTERNAL_SERVICE_URL")
	}
	cfg.DeliveryEndpointURL = strings.TrimSpace(cfg.DeliveryEndpointURL)
	if cfg.DeliveryTimeoutMs == 0 {
		if raw := strings.TrimSpace(os.Getenv("EXTERNAL_SERVICE_TIMEOUT_MS")); raw != "" {
			ms, err := strconv.Atoi(raw)
			if err != nil {
				return Config{}, fmt.Errorf("parse EXTERNAL_SERVICE_TIMEOUT_MS: %w", err)
			}
			cfg.DeliveryTimeoutMs = ms
		}
	}
	return cfg, nil
}

// DeliveryTimeout returns the outbound call timeout, 30s when unset.
func (c Config) DeliveryTimeout() time.Duration {
	if c.DeliveryTimeoutMs <= 0 {
		return defaultDeliveryTimeout
	}
	return time.Duration(c.DeliveryTimeoutMs) * time.Millisecond
}

// IsDevLike reports whether missing infrastructure may fall back to in-memory defaults.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func splitAndTrim(parts []string) []string {
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
