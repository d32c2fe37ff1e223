// Package server provides configuration helpers that define runtime
// defaults, YAML file loading, environment overrides, and validation for the
// chat service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting: up to Burst messages per RefillInterval.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	// ListenAddr is the TCP address the chat listener binds to.
	ListenAddr string
	// HTTPAddr is the address of the status/WebSocket HTTP listener.
	// Empty disables the HTTP listener entirely.
	HTTPAddr string
	// AllowedOrigins restricts WebSocket upgrades; "*" allows any origin.
	AllowedOrigins []string
	// QueueCapacity bounds each peer's inbox.
	QueueCapacity int
	RateLimit     RateLimitConfig
	LogLevel      string
}

// fileConfig mirrors Config for YAML decoding; durations are strings so the
// file can say "500ms" or "2s".
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	QueueCapacity  int      `yaml:"queue_capacity"`
	LogLevel       string   `yaml:"log_level"`
	RateLimit      struct {
		Burst          int    `yaml:"burst"`
		RefillInterval string `yaml:"refill_interval"`
	} `yaml:"rate_limit"`
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		ListenAddr:     "0.0.0.0:4321",
		HTTPAddr:       "",
		AllowedOrigins: []string{"http://localhost:8080"},
		QueueCapacity:  128,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		LogLevel: "info",
	}
}

// LoadConfig builds the effective configuration: defaults, then the YAML
// file at path when non-empty, then environment variable overrides, then a
// sanitize pass that restores defaults for zero or invalid values.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	cfg.sanitize()
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.QueueCapacity > 0 {
		cfg.QueueCapacity = fc.QueueCapacity
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.RateLimit.Burst > 0 {
		cfg.RateLimit.Burst = fc.RateLimit.Burst
	}
	if raw := strings.TrimSpace(fc.RateLimit.RefillInterval); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("rate_limit.refill_interval: invalid duration %q: %w", raw, err)
		}
		cfg.RateLimit.RefillInterval = d
	}

	return nil
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if capacity := os.Getenv("QUEUE_CAPACITY"); capacity != "" {
		cfg.QueueCapacity = parseIntValue(capacity, cfg.QueueCapacity)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// sanitize restores defaults for missing or out-of-range values so a partial
// config can never produce an unusable server.
func (c *Config) sanitize() {
	defaults := NewConfig()

	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaults.QueueCapacity
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
