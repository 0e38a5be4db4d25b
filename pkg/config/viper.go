package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by viper.
const EnvPrefix = "OLLAMAPROXY"

// legacyEnv maps config keys to the unprefixed variable names used by
// earlier deployments of the proxy. The prefixed name always wins.
var legacyEnv = map[string]string{
	"server.port":      "PORT",
	"server.mode":      "NODE_ENV",
	"upstream.url":     "CLOUD_API_URL",
	"upstream.api_key": "API_KEY",
	"upstream.models":  "MODELS",
	"logging.level":    "LOG_LEVEL",
}

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the OLLAMAPROXY_ prefix plus the legacy unprefixed names.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (OLLAMAPROXY_UPSTREAM_URL, CLOUD_API_URL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: OLLAMAPROXY_SERVER_PORT, OLLAMAPROXY_UPSTREAM_URL, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	return v, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set are left untouched, and a missing file is
// not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the fully-resolved configuration out of v.
func Load(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
			Mode: strings.ToLower(strings.TrimSpace(v.GetString("server.mode"))),
		},
		Upstream: UpstreamConfig{
			URL:            strings.TrimSpace(v.GetString("upstream.url")),
			APIKey:         strings.TrimSpace(v.GetString("upstream.api_key")),
			Models:         v.GetString("upstream.models"),
			FallbackModel:  v.GetString("upstream.fallback_model"),
			ConnectTimeout: v.GetString("upstream.connect_timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
			File:   v.GetString("logging.file"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
		Events: EventsConfig{
			Brokers:   v.GetString("events.brokers"),
			Topic:     v.GetString("events.topic"),
			Workers:   v.GetUint("events.workers"),
			QueueSize: v.GetUint("events.queue_size"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)

	// Upstream
	v.SetDefault("upstream.url", d.Upstream.URL)
	v.SetDefault("upstream.api_key", d.Upstream.APIKey)
	v.SetDefault("upstream.models", d.Upstream.Models)
	v.SetDefault("upstream.fallback_model", d.Upstream.FallbackModel)
	v.SetDefault("upstream.connect_timeout", d.Upstream.ConnectTimeout)

	// Logging
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)

	// Metrics
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	// Events
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.workers", d.Events.Workers)
	v.SetDefault("events.queue_size", d.Events.QueueSize)
}
