// Package config loads host configuration from the environment and from an
// optional plugin manifest file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Plugins   PluginConfig
	Resolver  ResolverConfig
	Sandbox   SandboxConfig
	Fetch     FetchConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port       string `envconfig:"PORT" default:"8000"`
	Host       string `envconfig:"HOST" default:"0.0.0.0"`
	APIEnabled bool   `envconfig:"API_ENABLED" default:"true"`
}

// PluginConfig selects which plugins start and where their modules live.
type PluginConfig struct {
	BaseURL          string            `envconfig:"PLUGIN_BASE_URL" default:"plugins"`
	Root             string            `envconfig:"PLUGIN_ROOT" default:"."`
	Names            []string          `envconfig:"PLUGINS"`
	EntryModule      string            `envconfig:"PLUGIN_ENTRY_MODULE" default:"main"`
	EntryOverrides   map[string]string `envconfig:"PLUGIN_ENTRY_OVERRIDES"`
	// ContextOverrides values cannot contain ":" here; URL overrides go in the manifest.
	ContextOverrides map[string]string `envconfig:"PLUGIN_CONTEXT_OVERRIDES"`
	Manifest         string            `envconfig:"PLUGIN_MANIFEST"`
	DiscoverGlob     string            `envconfig:"PLUGIN_DISCOVER_GLOB"`
}

// ResolverConfig bounds dependency resolution.
type ResolverConfig struct {
	Timeout      time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"30s"`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	Parallel     int           `envconfig:"RESOLVE_PARALLEL" default:"1"`
}

// SandboxConfig bounds plugin script execution.
type SandboxConfig struct {
	ScriptTimeout time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"5s"`
}

// FetchConfig configures the HTTP module fetcher.
type FetchConfig struct {
	Retries   int     `envconfig:"FETCH_RETRIES" default:"3"`
	RateLimit float64 `envconfig:"FETCH_RATE_LIMIT" default:"0"`
	UserAgent string  `envconfig:"FETCH_USER_AGENT" default:"pluginhost/1.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
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
			Port:       "8000",
			Host:       "0.0.0.0",
			APIEnabled: true,
		},
		Plugins: PluginConfig{
			BaseURL:     "plugins",
			Root:        ".",
			EntryModule: "main",
		},
		Resolver: ResolverConfig{
			Timeout:      30 * time.Second,
			FetchTimeout: 10 * time.Second,
			Parallel:     1,
		},
		Sandbox: SandboxConfig{
			ScriptTimeout: 5 * time.Second,
		},
		Fetch: FetchConfig{
			Retries:   3,
			UserAgent: "pluginhost/1.0",
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

// Validate rejects settings the host cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Plugins.EntryModule == "" {
		errs = append(errs, errors.New("PLUGIN_ENTRY_MODULE must not be empty"))
	}
	if c.Resolver.Timeout < 0 {
		errs = append(errs, errors.New("RESOLVE_TIMEOUT must not be negative"))
	}
	if c.Resolver.FetchTimeout < 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must not be negative"))
	}
	if c.Resolver.Parallel < 1 {
		errs = append(errs, errors.New("RESOLVE_PARALLEL must be at least 1"))
	}
	if c.Fetch.Retries < 0 {
		errs = append(errs, errors.New("FETCH_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}
