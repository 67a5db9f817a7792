// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultAdminPassword gates the admin routes when nothing else is set.
const DefaultAdminPassword = "dev-admin"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, receives logs with size-based rotation.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DataDir holds the JSON-lines store when no database is configured.
	DataDir string `koanf:"data_dir"`

	// DatabaseURL selects the relational store when present.
	DatabaseURL string `koanf:"database_url"`

	// AdminPassword is the shared secret for /api/admin.
	AdminPassword string `koanf:"admin_password"`

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// DevMode relaxes security header checks.
	DevMode bool `koanf:"dev_mode"`

	// RequestTimeoutMS bounds each request's handling time.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		DataDir:           "data",
		AdminPassword:     DefaultAdminPassword,
		RequestTimeoutMS:  10_000,
		ShutdownTimeoutMS: 10_000,
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.AdminPassword == "":
		return fmt.Errorf("%w: admin_password must not be empty", ErrInvalidConfig)
	case c.DatabaseURL == "" && strings.TrimSpace(c.DataDir) == "":
		return fmt.Errorf("%w: data_dir is required without database_url", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.RequestTimeoutMS < 0 || c.ShutdownTimeoutMS < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RequestTimeout returns RequestTimeoutMS as a duration; zero disables it.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// UsesDatabase reports whether the relational store is selected.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}
