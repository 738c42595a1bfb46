package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfigFile names the environment variable holding an optional TOML
// configuration file path.
const EnvConfigFile = "GLASSCLOUD_CONFIG"

// Config holds all application configuration. Values layer in order:
// code defaults, then the optional TOML file, then environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Display   DisplayConfig   `toml:"display"`
	Photo     PhotoConfig     `toml:"photo"`
	Apps      AppsConfig      `toml:"apps"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" toml:"port"`
	Host string `envconfig:"HOST" toml:"host"`
}

// DisplayConfig holds display arbitration timing configuration.
// Values are in milliseconds.
type DisplayConfig struct {
	BootDurationMs int `envconfig:"DISPLAY_BOOT_MS" toml:"boot_duration_ms"`
	ThrottleMs     int `envconfig:"DISPLAY_THROTTLE_MS" toml:"throttle_ms"`
	LockTimeoutMs  int `envconfig:"DISPLAY_LOCK_TIMEOUT_MS" toml:"lock_timeout_ms"`
	LockInactiveMs int `envconfig:"DISPLAY_LOCK_INACTIVE_MS" toml:"lock_inactive_ms"`
}

// BootDuration returns how long the boot banner holds the screen per
// starting app.
func (c DisplayConfig) BootDuration() time.Duration {
	return time.Duration(c.BootDurationMs) * time.Millisecond
}

// Throttle returns the minimum gap between non-forced main view sends.
func (c DisplayConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleMs) * time.Millisecond
}

// LockTimeout returns the background lock's hard expiry.
func (c DisplayConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

// LockInactive returns how long a lock holder may stay silent before the
// lock is treated as inactive.
func (c DisplayConfig) LockInactive() time.Duration {
	return time.Duration(c.LockInactiveMs) * time.Millisecond
}

// PhotoConfig holds photo request configuration. Values are in
// milliseconds.
type PhotoConfig struct {
	RequestTimeoutMs int `envconfig:"PHOTO_TIMEOUT_MS" toml:"request_timeout_ms"`
}

// RequestTimeout returns how long a photo request may stay in flight.
func (c PhotoConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// AppsConfig holds app registry configuration.
type AppsConfig struct {
	ManifestPath     string `envconfig:"APPS_MANIFEST" toml:"manifest_path"`
	DashboardPackage string `envconfig:"DASHBOARD_PACKAGE" toml:"dashboard_package"`
	CorePackage      string `envconfig:"CORE_PACKAGE" toml:"core_package"`
}

// WebhookConfig holds app lifecycle webhook configuration.
type WebhookConfig struct {
	Enabled    bool `envconfig:"WEBHOOK_ENABLED" toml:"enabled"`
	TimeoutMs  int  `envconfig:"WEBHOOK_TIMEOUT_MS" toml:"timeout_ms"`
	MaxRetries int  `envconfig:"WEBHOOK_MAX_RETRIES" toml:"max_retries"`
	RPS        int  `envconfig:"WEBHOOK_RPS" toml:"rps"`
}

// Timeout returns the per-delivery webhook timeout.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled"`
}

// Load loads configuration from the file named by GLASSCLOUD_CONFIG (if
// set) and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigFile))
}

// LoadFile loads configuration layered over code defaults: the TOML file
// at path first (when path is non-empty), then environment variables.
// Environment variables always win.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns the defaults when loading
// fails.
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
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Display: DisplayConfig{
			BootDurationMs: 3000,
			ThrottleMs:     300,
			LockTimeoutMs:  10000,
			LockInactiveMs: 2000,
		},
		Photo: PhotoConfig{
			RequestTimeoutMs: 30000,
		},
		Apps: AppsConfig{
			ManifestPath:     "configs/apps.yaml",
			DashboardPackage: "cloud.lumena.dashboard",
			CorePackage:      "cloud.lumena.captions",
		},
		Webhook: WebhookConfig{
			Enabled:    true,
			TimeoutMs:  5000,
			MaxRetries: 2,
			RPS:        20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
