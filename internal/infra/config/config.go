// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Auth    AuthConfig              `yaml:"auth"`
	Store   StoreConfig             `yaml:"store"`
	Catalog CatalogConfig           `yaml:"catalog"`
	Session SessionConfig           `yaml:"session"`
	Filters map[string]FilterConfig `yaml:"filters"`
	Log     LogConfig               `yaml:"log"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr              string `yaml:"addr" default:":8080"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms" default:"10000" validate:"gte=0"`
}

// AuthConfig represents participant token configuration.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret" validate:"required,min=16"`
	TokenTTLMin int    `yaml:"token_ttl_min" default:"720" validate:"gte=1"`
}

// StoreConfig represents the party store configuration.
type StoreConfig struct {
	Path string `yaml:"path" default:"partyline.db"`
}

// CatalogConfig represents the track catalog service configuration.
type CatalogConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
}

// SessionConfig represents per-session engine tuning.
type SessionConfig struct {
	TickIntervalMs   int `yaml:"tick_interval_ms" default:"1000" validate:"gte=10,lte=10000"`
	GraceWindowSec   int `yaml:"grace_window_sec" default:"30" validate:"gte=1"`
	ChatHistory      int `yaml:"chat_history" default:"200" validate:"gte=1"`
	ChatMaxRunes     int `yaml:"chat_max_runes" default:"500" validate:"gte=1"`
	DeltaHistory     int `yaml:"delta_history" default:"512" validate:"gte=1"`
	SubscriberBuffer int `yaml:"subscriber_buffer" default:"32" validate:"gte=1"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("PARTYLINE_TOKEN_SECRET"); v != "" {
		c.Auth.TokenSecret = v
	}
	if v := os.Getenv("PARTYLINE_CATALOG_API_KEY"); v != "" {
		c.Catalog.APIKey = v
	}
	if v := os.Getenv("PARTYLINE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled reports whether the named filter is enabled.
func (c *Config) IsFilterEnabled(name string) bool {
	f, ok := c.Filters[name]
	return ok && f.Enabled
}

// TickInterval returns the session tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Session.TickIntervalMs) * time.Millisecond
}

// GraceWindow returns how long an empty session lingers before teardown.
func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.Session.GraceWindowSec) * time.Second
}

// TokenTTL returns the participant token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMin) * time.Minute
}

// CatalogTimeout returns the catalog request timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}
