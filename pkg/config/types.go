package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the ollamaproxy configuration. It is stored as
// config.toml in the .ollamaproxy/ directory and, once loaded at startup, is
// treated as an immutable value handed to every component that needs it.
type Config struct {
	Version  int            `toml:"version"`
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Events   EventsConfig   `toml:"events"`
}

// ServerConfig holds settings for the downstream-facing HTTP server.
type ServerConfig struct {
	Port int `toml:"port,omitempty"`

	// Mode is either "development" or "production". Production mode hides
	// stack traces from error responses and defaults logs to JSON.
	Mode string `toml:"mode,omitempty"`
}

// UpstreamConfig holds settings for the remote OpenAI-compatible API.
type UpstreamConfig struct {
	// URL is the chat completions endpoint streaming requests are POSTed to.
	// Fallback requests are sent to URL + inbound path.
	URL string `toml:"url,omitempty"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `toml:"api_key,omitempty"`

	// Models is the comma-separated list advertised by /api/tags.
	Models string `toml:"models,omitempty"`

	// FallbackModel names emitted records when the request has no model.
	FallbackModel string `toml:"fallback_model,omitempty"`

	// ConnectTimeout bounds connection establishment and the wait for
	// response headers, as a Go duration string (e.g. "30s").
	ConnectTimeout string `toml:"connect_timeout,omitempty"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `toml:"level,omitempty"`

	// Format is one of "auto", "pretty", "json" or "text". "auto" picks
	// pretty output in development and JSON in production.
	Format string `toml:"format,omitempty"`

	// File, when set, additionally receives JSON logs.
	File string `toml:"file,omitempty"`
}

// MetricsConfig holds prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"`
}

// EventsConfig holds session event publishing settings.
// Publishing is disabled when Brokers is empty.
type EventsConfig struct {
	Brokers   string `toml:"brokers,omitempty"`
	Topic     string `toml:"topic,omitempty"`
	Workers   uint   `toml:"workers,omitempty"`
	QueueSize uint   `toml:"queue_size,omitempty"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Mode, ModeProduction)
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// ModelNames splits the configured model list, dropping blank entries.
func (c *Config) ModelNames() []string {
	return splitList(c.Upstream.Models)
}

// BrokerList splits the configured Kafka brokers, dropping blank entries.
func (c *Config) BrokerList() []string {
	return splitList(c.Events.Brokers)
}

// ConnectTimeout parses Upstream.ConnectTimeout.
func (c *Config) ConnectTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Upstream.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid upstream.connect_timeout %q: %w", c.Upstream.ConnectTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("upstream.connect_timeout must be positive, got %s", d)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.port": {
		get: func(c *Config) string { return strconv.Itoa(c.Server.Port) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for server.port: %w", err)
			}
			c.Server.Port = n
			return nil
		},
	},
	"server.mode": {
		get: func(c *Config) string { return c.Server.Mode },
		set: func(c *Config, v string) error { c.Server.Mode = v; return nil },
	},
	"upstream.url": {
		get: func(c *Config) string { return c.Upstream.URL },
		set: func(c *Config, v string) error { c.Upstream.URL = v; return nil },
	},
	"upstream.api_key": {
		get: func(c *Config) string { return c.Upstream.APIKey },
		set: func(c *Config, v string) error { c.Upstream.APIKey = v; return nil },
	},
	"upstream.models": {
		get: func(c *Config) string { return c.Upstream.Models },
		set: func(c *Config, v string) error { c.Upstream.Models = v; return nil },
	},
	"upstream.fallback_model": {
		get: func(c *Config) string { return c.Upstream.FallbackModel },
		set: func(c *Config, v string) error { c.Upstream.FallbackModel = v; return nil },
	},
	"upstream.connect_timeout": {
		get: func(c *Config) string { return c.Upstream.ConnectTimeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for upstream.connect_timeout: %w", err)
			}
			c.Upstream.ConnectTimeout = v
			return nil
		},
	},
	"logging.level": {
		get: func(c *Config) string { return c.Logging.Level },
		set: func(c *Config, v string) error { c.Logging.Level = v; return nil },
	},
	"logging.format": {
		get: func(c *Config) string { return c.Logging.Format },
		set: func(c *Config, v string) error { c.Logging.Format = v; return nil },
	},
	"logging.file": {
		get: func(c *Config) string { return c.Logging.File },
		set: func(c *Config, v string) error { c.Logging.File = v; return nil },
	},
	"metrics.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Metrics.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for metrics.enabled: %w", err)
			}
			c.Metrics.Enabled = b
			return nil
		},
	},
	"metrics.path": {
		get: func(c *Config) string { return c.Metrics.Path },
		set: func(c *Config, v string) error { c.Metrics.Path = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"events.workers": {
		get: func(c *Config) string { return formatUint(c.Events.Workers) },
		set: func(c *Config, v string) error { return parseUint("events.workers", v, &c.Events.Workers) },
	},
	"events.queue_size": {
		get: func(c *Config) string { return formatUint(c.Events.QueueSize) },
		set: func(c *Config, v string) error { return parseUint("events.queue_size", v, &c.Events.QueueSize) },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, target *uint) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = uint(n)
	return nil
}
