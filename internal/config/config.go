// Package config loads and validates the process configuration from
// environment variables: caarlos0/env for typed parsing with defaults,
// joho/godotenv for an optional local .env file, zerolog for the
// startup log line.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
//
//	env:        environment variable name
//	envDefault: default value if not set
type Config struct {
	// Server basics
	ServerPort string `env:"SERVER_PORT" envDefault:":8080"`

	// Hot store
	HotStoreAddr        string `env:"HOT_STORE_ADDR" envDefault:"localhost:6379"`
	HotStorePool        int    `env:"HOT_STORE_POOL" envDefault:"64"`
	HotStorePoolMinIdle int    `env:"HOT_STORE_POOL_MIN_IDLE" envDefault:"8"`

	// Message dispatcher
	BrokerURL      string `env:"BROKER_URL" envDefault:"localhost:9092"`
	BrokerTopic    string `env:"BROKER_TOPIC" envDefault:"seckill.reservations"`
	BrokerClientID string `env:"BROKER_CLIENT_ID" envDefault:"seckill-core"`

	// Alert fan-out
	NotifyURL string `env:"NOTIFY_URL" envDefault:"localhost:4222"`

	// System of record
	SORBaseURL string `env:"SOR_BASE_URL" envDefault:"http://localhost:9090"`

	// Rate limiter
	RLGlobalQPS        float64       `env:"RL_GLOBAL_QPS" envDefault:"5000"`
	RLGlobalBurst      int           `env:"RL_GLOBAL_BURST" envDefault:"5000"`
	RLIPQPS            float64       `env:"RL_IP_QPS" envDefault:"20"`
	RLIPBurst          int           `env:"RL_IP_BURST" envDefault:"20"`
	RLUserQPS          float64       `env:"RL_USER_QPS" envDefault:"1"`
	RLUserBurst        int           `env:"RL_USER_BURST" envDefault:"1"`
	RLBucketSweep      time.Duration `env:"RL_BUCKET_SWEEP_INTERVAL" envDefault:"5m"`

	// Worker pool
	WorkerPoolSize  int `env:"WORKER_POOL_SIZE" envDefault:"32"`
	WorkerQueueSize int `env:"WORKER_QUEUE_SIZE" envDefault:"3200"`

	// Cache TTLs
	CacheTTLActivity       time.Duration `env:"CACHE_TTL_ACTIVITY" envDefault:"24h"`
	CacheTTLStock          time.Duration `env:"CACHE_TTL_STOCK" envDefault:"0"`
	CacheTTLUser           time.Duration `env:"CACHE_TTL_USER" envDefault:"24h"`
	CacheRefreshAheadRatio float64       `env:"CACHE_REFRESH_AHEAD_RATIO" envDefault:"0.2"`

	// Consistency reconciler
	ReconcilerInterval    time.Duration `env:"RECONCILER_INTERVAL" envDefault:"30s"`
	ReconcilerAlertThresh float64       `env:"RECONCILER_ALERT_THRESHOLD" envDefault:"0.95"`
	ReconcilerMaxRetries  int           `env:"RECONCILER_MAX_RETRIES" envDefault:"3"`

	// Metrics
	MetricsAddr          string        `env:"METRICS_ADDR" envDefault:":9091"`
	MetricsInterval      time.Duration `env:"METRICS_INTERVAL" envDefault:"30s"`
	MetricsMinHitRate    float64       `env:"METRICS_MIN_HIT_RATE" envDefault:"0.8"`
	MetricsMaxErrorRate  float64       `env:"METRICS_MAX_ERROR_RATE" envDefault:"0.05"`
	MetricsMaxAvgLatency time.Duration `env:"METRICS_MAX_AVG_LATENCY" envDefault:"100ms"`
	MetricsLowStockUnits int           `env:"METRICS_LOW_STOCK_UNITS" envDefault:"10"`
	MetricsMaxCPUPct     float64       `env:"METRICS_MAX_CPU_PERCENT" envDefault:"90"`
	MetricsMaxMemoryPct  float64       `env:"METRICS_MAX_MEMORY_PERCENT" envDefault:"90"`

	// Reservation engine
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// HTTP front
	AdminAuthToken   string        `env:"ADMIN_AUTH_TOKEN" envDefault:""`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5s"`

	// CORS origin allow-list, deployment config rather than a component
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from a .env file (optional) and the process
// environment. Priority: real env vars > .env file > struct defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors beyond what env.Parse covers.
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be > 0, got %d", c.WorkerPoolSize)
	}
	if c.ReconcilerAlertThresh < 0 || c.ReconcilerAlertThresh > 1 {
		return fmt.Errorf("RECONCILER_ALERT_THRESHOLD must be 0-1, got %.2f", c.ReconcilerAlertThresh)
	}
	if c.CacheRefreshAheadRatio <= 0 || c.CacheRefreshAheadRatio >= 1 {
		return fmt.Errorf("CACHE_REFRESH_AHEAD_RATIO must be in (0,1), got %.2f", c.CacheRefreshAheadRatio)
	}
	if c.RLGlobalQPS <= 0 || c.RLIPQPS <= 0 || c.RLUserQPS <= 0 {
		return fmt.Errorf("RL_*_QPS values must be > 0")
	}
	if c.MetricsMinHitRate < 0 || c.MetricsMinHitRate > 1 {
		return fmt.Errorf("METRICS_MIN_HIT_RATE must be 0-1, got %.2f", c.MetricsMinHitRate)
	}
	if c.MetricsMaxErrorRate < 0 || c.MetricsMaxErrorRate > 1 {
		return fmt.Errorf("METRICS_MAX_ERROR_RATE must be 0-1, got %.2f", c.MetricsMaxErrorRate)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the loaded configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("server_port", c.ServerPort).
		Str("hot_store_addr", c.HotStoreAddr).
		Str("broker_url", c.BrokerURL).
		Str("broker_topic", c.BrokerTopic).
		Int("worker_pool_size", c.WorkerPoolSize).
		Int("worker_queue_size", c.WorkerQueueSize).
		Float64("rl_global_qps", c.RLGlobalQPS).
		Float64("rl_ip_qps", c.RLIPQPS).
		Float64("rl_user_qps", c.RLUserQPS).
		Dur("metrics_interval", c.MetricsInterval).
		Dur("reconciler_interval", c.ReconcilerInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
