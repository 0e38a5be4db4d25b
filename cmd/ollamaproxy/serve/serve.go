// Package servecmder provides the serve command that runs the proxy server.
package servecmder

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/eventstream"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/eventstream/kafka"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/eventstream/nop"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/logger"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/utils"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/worker"
)

// dotEnvFile is loaded from the working directory before configuration is
// resolved.
const dotEnvFile = ".env"

type ServeCommander struct {
	port           int
	mode           string
	upstream       string
	apiKey         string
	models         string
	fallbackModel  string
	connectTimeout string
	logLevel       string
	logFormat      string
	logFile        string
	metricsPath    string
	eventsBrokers  string
	eventsTopic    string

	debug  bool
	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the ollamaproxy server.

The server answers the Ollama API on the configured port:
  GET  /            liveness probe
  GET  /health      health report
  GET  /api/tags    configured models
  POST /api/chat    streamed chat, translated from the upstream event stream
  *    /api/*       relayed to the upstream as is

Configuration is resolved from, highest precedence first: CLI flags,
environment variables (OLLAMAPROXY_*, or the legacy PORT, NODE_ENV,
CLOUD_API_URL, API_KEY, MODELS and LOG_LEVEL), a .env file in the working
directory, .ollamaproxy/config.toml and built-in defaults.`

const serveShortDesc string = "Run the ollamaproxy server"

// serveFlagKeys lists the registry flags bound by the serve command.
var serveFlagKeys = []string{
	config.FlagPort,
	config.FlagMode,
	config.FlagUpstream,
	config.FlagAPIKey,
	config.FlagModels,
	config.FlagFallbackModel,
	config.FlagConnectTimeout,
	config.FlagLogLevel,
	config.FlagLogFormat,
	config.FlagLogFile,
	config.FlagMetricsPath,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&ServeCommander{})
}

func newServeCmd(cmder *ServeCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.loadConfig(cmd, configDir)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	fs := config.ServeFlags
	config.AddIntFlag(cmd, fs, config.FlagPort, &cmder.port)
	config.AddStringFlag(cmd, fs, config.FlagMode, &cmder.mode)
	config.AddStringFlag(cmd, fs, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, fs, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, fs, config.FlagModels, &cmder.models)
	config.AddStringFlag(cmd, fs, config.FlagFallbackModel, &cmder.fallbackModel)
	config.AddStringFlag(cmd, fs, config.FlagConnectTimeout, &cmder.connectTimeout)
	config.AddStringFlag(cmd, fs, config.FlagLogLevel, &cmder.logLevel)
	config.AddStringFlag(cmd, fs, config.FlagLogFormat, &cmder.logFormat)
	config.AddStringFlag(cmd, fs, config.FlagLogFile, &cmder.logFile)
	config.AddStringFlag(cmd, fs, config.FlagMetricsPath, &cmder.metricsPath)
	config.AddStringFlag(cmd, fs, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventsTopic, &cmder.eventsTopic)

	return cmd
}

// loadConfig resolves the runtime configuration: .env, then viper with the
// serve flags bound on top.
func (c *ServeCommander) loadConfig(cmd *cobra.Command, configDir string) error {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return err
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)

	c.cfg = config.Load(v)
	return nil
}

func (c *ServeCommander) run() error {
	warnings, err := c.cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, logCloser, err := newLogger(c.cfg, c.debug, os.Stdout)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	c.logger = l

	for _, w := range warnings {
		c.logger.Warn(w)
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			c.logger.Warn("closing event publisher", "error", err)
		}
	}()

	wp, err := worker.NewPool(&worker.Config{
		Publisher:  publisher,
		NumWorkers: c.cfg.Events.Workers,
		QueueSize:  c.cfg.Events.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("could not create worker pool: %w", err)
	}

	p, err := proxy.New(c.cfg, proxy.Options{
		Logger:     c.logger,
		WorkerPool: wp,
	})
	if err != nil {
		wp.Close()
		return fmt.Errorf("creating proxy: %w", err)
	}

	c.logger.Info("starting ollamaproxy",
		"version", utils.Version,
		"mode", c.cfg.Server.Mode,
		"listen", c.cfg.ListenAddr(),
		"upstream", c.cfg.Upstream.URL,
		"models", c.cfg.ModelNames(),
		"metrics", c.cfg.Metrics.Enabled,
		"events", len(c.cfg.BrokerList()) > 0,
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		wp.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	// Stops accepting connections, waits for in-flight streams, then drains
	// the worker pool.
	if err := p.Close(); err != nil {
		c.logger.Warn("proxy shutdown incomplete", "error", err)
	}
	c.logger.Info("shutdown complete")
	return nil
}

func (c *ServeCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := c.cfg.BrokerList()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.cfg.Events.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing session events",
		"brokers", brokers,
		"topic", c.cfg.Events.Topic,
	)
	return pub, nil
}

// newLogger builds the process logger. Format "auto" selects pretty output
// in development and JSON in production. When a log file is configured it
// additionally receives JSON records; the returned closer closes it.
func newLogger(cfg *config.Config, debug bool, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if format == "" || format == "auto" {
		format = "pretty"
		if cfg.IsProduction() {
			format = "json"
		}
	}

	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithWriter(w),
	}
	if debug {
		opts = append(opts, logger.WithDebug(true), logger.WithSource(true))
		level = slog.LevelDebug
	}
	switch format {
	case "pretty":
		opts = append(opts, logger.WithPretty(true))
	case "json":
		opts = append(opts, logger.WithJSON(true))
	case "text":
	default:
		return nil, nil, fmt.Errorf("unknown log format: %q", cfg.Logging.Format)
	}

	console := logger.New(opts...)
	if cfg.Logging.File == "" {
		return console, nil, nil
	}

	f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithLevel(level),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), f, nil
}
