// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment names
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// State backends
const (
	BackendBlob   = "blob"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// Deployment stage, drives metric prefixing and state namespacing
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Region this instance runs in, reported as source_region
	Region string `envconfig:"REGION" default:"default"`

	// HTTP server port
	Port string `envconfig:"PORT" default:"8080"`

	// Endpoints document, inline JSON wins over the file
	Endpoints     string `envconfig:"ENDPOINTS"`
	EndpointsFile string `envconfig:"ENDPOINTS_FILE" default:"endpoints.json"`

	// Trigger authentication
	CronSecret string `envconfig:"CRON_SECRET"`
	SkipAuth   bool   `envconfig:"SKIP_AUTH" default:"false"`

	// State store
	StateBackend string        `envconfig:"STATE_BACKEND" default:"blob"`
	BlobBaseURL  string        `envconfig:"BLOB_BASE_URL" default:"https://blob.vercel-storage.com"`
	BlobStoreID  string        `envconfig:"STORE_ID"`
	BlobToken    string        `envconfig:"VERCEL_BLOB_TOKEN"`
	RedisURL     string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	StateTTL     time.Duration `envconfig:"STATE_TTL" default:"0s"`

	// State updater
	UpdateRegions   []string      `envconfig:"STATE_UPDATE_REGIONS" default:"fra1"`
	UpdateProviders []string      `envconfig:"STATE_UPDATE_PROVIDERS"`
	StateChains     []string      `envconfig:"STATE_CHAINS"`
	UpdateLock      bool          `envconfig:"STATE_UPDATE_LOCK" default:"false"`
	UpdateLockTTL   time.Duration `envconfig:"STATE_UPDATE_LOCK_TTL" default:"2m"`

	// Timeouts
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	ProbeTimeout time.Duration `envconfig:"METRIC_REQUEST_TIMEOUT" default:"55s"`
	MaxLatency   time.Duration `envconfig:"METRIC_MAX_LATENCY" default:"55s"`
	PassTimeout  time.Duration `envconfig:"PASS_TIMEOUT" default:"60s"`

	// Probe fan-out bound per collection pass
	ProbeConcurrency int `envconfig:"PROBE_CONCURRENCY" default:"16"`

	// Metrics sink
	GrafanaURL    string `envconfig:"GRAFANA_URL"`
	GrafanaUser   string `envconfig:"GRAFANA_USER"`
	GrafanaAPIKey string `envconfig:"GRAFANA_API_KEY"`

	// Optional sample stream
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"rpc-latency-samples"`

	// OpenTelemetry endpoint for observability
	OtelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Trigger rate limiting
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"10"`

	// In-process scheduler
	ScheduleEnabled bool   `envconfig:"SCHEDULE_ENABLED" default:"false"`
	CollectSchedule string `envconfig:"COLLECT_SCHEDULE" default:"@every 3m"`
	UpdateSchedule  string `envconfig:"UPDATE_SCHEDULE" default:"@every 15m"`
	UpdateOnStart   bool   `envconfig:"UPDATE_ON_START" default:"true"`

	// Per-provider circuit breaker
	BreakerMaxFailures      int           `envconfig:"BREAKER_MAX_FAILURES" default:"3"`
	BreakerSuccessThreshold int           `envconfig:"BREAKER_SUCCESS_THRESHOLD" default:"1"`
	BreakerResetDelay       time.Duration `envconfig:"BREAKER_RESET_DELAY" default:"5m"`
}

// Load reads an optional .env file and then the process environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c Config) Validate() error {
	switch c.StateBackend {
	case BackendBlob:
		if c.BlobStoreID == "" || c.BlobToken == "" {
			return fmt.Errorf("blob backend requires STORE_ID and VERCEL_BLOB_TOKEN")
		}
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	if c.UpdateLock && c.RedisURL == "" {
		return fmt.Errorf("STATE_UPDATE_LOCK requires REDIS_URL")
	}
	if c.ProbeConcurrency <= 0 {
		return fmt.Errorf("PROBE_CONCURRENCY must be positive, got %d", c.ProbeConcurrency)
	}
	for name, d := range map[string]time.Duration{
		"FETCH_TIMEOUT":          c.FetchTimeout,
		"METRIC_REQUEST_TIMEOUT": c.ProbeTimeout,
		"PASS_TIMEOUT":           c.PassTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if !c.SkipAuth && c.CronSecret == "" && c.IsProduction() {
		return fmt.Errorf("CRON_SECRET is required in production")
	}
	return nil
}

// IsProduction reports whether this is the production deployment
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// MetricPrefix is prepended to every exported metric name outside production
func (c Config) MetricPrefix() string {
	if c.IsProduction() {
		return ""
	}
	return "dev_"
}

// MetricName is the latency series name
func (c Config) MetricName() string {
	return c.MetricPrefix() + "response_latency_seconds"
}

// StateNamespace keeps development and production snapshots apart
func (c Config) StateNamespace() string {
	if c.IsProduction() {
		return "prod-rpc-dashboard"
	}
	return "dev-rpc-dashboard"
}
