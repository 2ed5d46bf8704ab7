// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration.
type Config struct {
	Nav     NavConfig
	Server  ServerConfig
	Logging LogConfig
}

// NavConfig holds navigation engine defaults.
type NavConfig struct {
	// Timeout is the request timeout raced against every fetch; zero
	// disables the timer.
	Timeout time.Duration `envconfig:"NAV_TIMEOUT" default:"650ms"`

	// Method is the default HTTP method for navigations.
	Method string `envconfig:"NAV_METHOD" default:"GET"`
}

// ServerConfig holds the demo server's listen address.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	Port string `envconfig:"PORT" default:"8080"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Nav: NavConfig{
			Timeout: 650 * time.Millisecond,
			Method:  "GET",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}
