package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks cfg for values the server cannot start with.
//
// Missing upstream settings are reported as warnings rather than errors:
// some deployments only use the static endpoints, and others front an
// upstream that needs no credential.
func (c *Config) Validate() (warnings []string, err error) {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Server.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("server.mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, c.Server.Mode))
	}

	if _, err := c.ConnectTimeout(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "pretty", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be one of auto, pretty, json, text, got %q", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path))
	}

	if len(c.BrokerList()) > 0 && strings.TrimSpace(c.Events.Topic) == "" {
		errs = append(errs, errors.New("events.topic is required when events.brokers is set"))
	}

	if c.Upstream.URL == "" {
		warnings = append(warnings, "upstream.url is not set; chat requests will fail until it is configured")
	}
	if c.Upstream.APIKey == "" {
		warnings = append(warnings, "upstream.api_key is not set; requests are sent without an Authorization header")
	}
	if len(c.ModelNames()) == 0 {
		warnings = append(warnings, "upstream.models is empty; /api/tags will list no models")
	}

	return warnings, errors.Join(errs...)
}
