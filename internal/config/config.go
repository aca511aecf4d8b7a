// Package config loads the collaboration hub configuration from
// environment variables, applies defaults, and validates everything on
// startup so a misconfigured hub fails fast.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all hub configuration.
type Config struct {
	Server  ServerConfig
	Hub     HubConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response.
	// Zero by default: websocket connections are long-lived.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// HubConfig holds change-log and websocket settings.
type HubConfig struct {
	// MaxChanges bounds the in-memory change log; the oldest entries
	// are evicted first (default: 10000)
	MaxChanges int `env:"HUB_MAX_CHANGES" default:"10000"`

	// ChangeRetention is how long change entries stay available for
	// polling clients (default: 10m)
	ChangeRetention time.Duration `env:"HUB_CHANGE_RETENTION" default:"10m"`

	// PingInterval is the websocket keepalive period (default: 30s)
	PingInterval time.Duration `env:"HUB_PING_INTERVAL" default:"30s"`

	// AllowedOrigins is a comma-separated list of origins permitted to
	// open websocket connections. Empty allows all origins.
	AllowedOrigins []string `env:"HUB_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Validate checks the configuration and reports every failure at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Hub.MaxChanges <= 0 {
		errs = append(errs, "HUB_MAX_CHANGES must be positive")
	}
	if c.Hub.ChangeRetention <= 0 {
		errs = append(errs, "HUB_CHANGE_RETENTION must be positive")
	}
	if c.Hub.PingInterval <= 0 {
		errs = append(errs, "HUB_PING_INTERVAL must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a loggable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, Hub: {MaxChanges: %d, Retention: %s}, Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port, c.Hub.MaxChanges, c.Hub.ChangeRetention, c.Logging.Level, c.Logging.Format)
}
