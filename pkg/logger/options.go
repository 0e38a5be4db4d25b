package logger

import (
	"io"
	"log/slog"
)

// Option tweaks the logger built by New.
type Option func(*config)

// WithDebug turns on debug records. Passing false resets the level to Info,
// so it overrides an earlier WithLevel.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		} else {
			c.level = slog.LevelInfo
		}
	}
}

// WithLevel drops records below level. serve feeds it logging.level.
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithPretty selects the colored charmbracelet/log output meant for someone
// watching the proxy in a terminal.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects one JSON object per record, for production and log
// files. It takes precedence over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter sends records to w instead of os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.w = w
	}
}

// WithSource adds the caller's file and line to every record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
