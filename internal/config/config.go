// Package config loads startup configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
)

// Transport binding names.
const (
	TransportSSE        = "sse"
	TransportStreamable = "http"
)

// Config is the process configuration. Values come from the environment;
// command-line flags in cmd/server override them.
type Config struct {
	// DatabaseURL is the data-store connection URL. Required; its absence
	// is a fatal startup error.
	DatabaseURL string `env:"DATABASE_URL"`
	// Addr is the listen address.
	Addr string `env:"ADDR,default=:8080"`
	// Transport selects the binding: "sse" or "http".
	Transport string `env:"MCP_TRANSPORT,default=sse"`
	// LogLevel sets the log verbosity.
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required (DATABASE_URL or -database-url)")
	}
	switch c.Transport {
	case TransportSSE, TransportStreamable:
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", c.Transport, TransportSSE, TransportStreamable)
	}
	return nil
}
