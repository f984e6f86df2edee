// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Gateway   GatewayConfig
	Persist   PersistConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// GatewayConfig holds remote conversation service configuration.
type GatewayConfig struct {
	BaseURL      string        `envconfig:"CHATSYNC_GATEWAY_URL" default:"http://localhost:8000"`
	Timeout      time.Duration `envconfig:"CHATSYNC_GATEWAY_TIMEOUT" default:"30s"`
	RetryMax     int           `envconfig:"CHATSYNC_GATEWAY_RETRY_MAX" default:"3"`
	RetryWaitMin time.Duration `envconfig:"CHATSYNC_GATEWAY_RETRY_WAIT_MIN" default:"1s"`
	RetryWaitMax time.Duration `envconfig:"CHATSYNC_GATEWAY_RETRY_WAIT_MAX" default:"10s"`
}

// PersistConfig holds active-conversation persistence configuration.
type PersistConfig struct {
	Path string `envconfig:"CHATSYNC_PERSIST_PATH" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"CHATSYNC_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"CHATSYNC_LOG_DEV" default:"false"`
}

// RateLimitConfig holds outbound request rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"CHATSYNC_RATE_LIMIT_RPS" default:"0"`
	Enabled           bool    `envconfig:"CHATSYNC_RATE_LIMIT_ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:      "http://localhost:8000",
			Timeout:      30 * time.Second,
			RetryMax:     3,
			RetryWaitMin: 1 * time.Second,
			RetryWaitMax: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Enabled:           false,
		},
	}
}
