// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Store driver names.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port string

	StoreDriver string // "sqlite" or "redis"
	DBPath      string
	RedisAddr   string

	FlowBaseURL   string
	FlowAPIToken  string
	DefaultFlowID string

	ChannelSocketURL string // empty disables the socket channel adapter

	StateTTL      time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DBPath:           getEnv("DB_PATH", "./data/zapbridge.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		FlowBaseURL:      getEnv("FLOW_BASE_URL", ""),
		FlowAPIToken:     getEnv("FLOW_API_TOKEN", ""),
		DefaultFlowID:    getEnv("DEFAULT_FLOW_ID", ""),
		ChannelSocketURL: getEnv("CHANNEL_SOCKET_URL", ""),
		StateTTL:         getEnvDuration("STATE_TTL", 30*time.Minute),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty with the sqlite driver")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty with the redis driver")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverRedis, c.StoreDriver)
	}
	if c.FlowBaseURL == "" {
		return fmt.Errorf("FLOW_BASE_URL cannot be empty")
	}
	if c.DefaultFlowID == "" {
		return fmt.Errorf("DEFAULT_FLOW_ID cannot be empty")
	}
	if c.StateTTL <= 0 {
		return fmt.Errorf("STATE_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
