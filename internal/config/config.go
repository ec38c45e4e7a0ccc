// Package config defines the gateway's YAML/JSON5 configuration.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/thesecretlab-dev/anima-dashboard/internal/auth"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sandbox"
	"github.com/thesecretlab-dev/anima-dashboard/internal/security"
)

// Config is the root gateway configuration.
type Config struct {
	Gateway  GatewayConfig   `yaml:"gateway"`
	Security security.Config `yaml:"security"`
	Sandbox  sandbox.Config  `yaml:"sandbox"`
	Auth     auth.Config     `yaml:"auth"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// GatewayConfig configures the listener and run dispatch.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Scope qualifies canonical session keys (agent:<scope>:<key>).
	Scope string `yaml:"scope"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// SessionListLimit caps sessions.list responses.
	SessionListLimit int `yaml:"session_list_limit"`

	// EventBuffer is the per-connection outbound event queue depth.
	// Overflow drops events and marks a feed gap for the surface.
	EventBuffer int `yaml:"event_buffer"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`   // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:             "127.0.0.1",
			Port:             8787,
			Scope:            "local",
			MetricsEnabled:   true,
			SessionListLimit: 50,
			EventBuffer:      256,
		},
		Security: security.DefaultConfig(),
		Sandbox:  sandbox.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Addr returns the listen address.
func (g GatewayConfig) Addr() string {
	return net.JoinHostPort(g.Host, strconv.Itoa(g.Port))
}

// Validate checks invariants that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway port %d out of range", c.Gateway.Port)
	}
	if c.Gateway.Scope == "" {
		return fmt.Errorf("gateway scope is required")
	}
	if c.Gateway.EventBuffer < 1 {
		return fmt.Errorf("event buffer must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
