package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the process-level configuration for routerd. The routing
// document (hosts, graphs, routes) lives in a separate JSON file; see
// Document.
type Config struct {
	ConfigPath string `env:"ROUTERD_CONFIG" envDefault:"routerd.json"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Events selects the event bus implementation: "memory" or "redis".
	Events string `env:"ROUTERD_EVENTS" envDefault:"memory"`

	// Redis configuration, used when Events is "redis"
	Redis RedisConfig

	// Timeouts
	DownstreamTimeout time.Duration `env:"ROUTERD_DOWNSTREAM_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"ROUTERD_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.Events {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required when events=redis")
		}
	default:
		return fmt.Errorf("invalid events backend: %s (must be memory or redis)", c.Events)
	}

	if c.DownstreamTimeout <= 0 {
		return fmt.Errorf("downstream timeout must be positive")
	}

	return nil
}
