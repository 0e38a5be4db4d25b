package config

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	defaultPort           = 3000
	defaultMode           = ModeDevelopment
	defaultFallbackModel  = "kimi-k2"
	defaultConnectTimeout = "30s"

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"

	defaultMetricsPath = "/metrics"

	defaultEventsTopic     = "ollamaproxy.sessions"
	defaultEventsWorkers   = 2
	defaultEventsQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Port: defaultPort,
			Mode: defaultMode,
		},
		Upstream: UpstreamConfig{
			FallbackModel:  defaultFallbackModel,
			ConnectTimeout: defaultConnectTimeout,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Events: EventsConfig{
			Topic:     defaultEventsTopic,
			Workers:   defaultEventsWorkers,
			QueueSize: defaultEventsQueueSize,
		},
	}
}
