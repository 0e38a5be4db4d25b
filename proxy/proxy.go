// Package proxy provides the Ollama-shaped HTTP surface of ollamaproxy.
//
// Streaming chat requests are translated on the fly from an OpenAI-compatible
// chat completions stream (see proxy/stream). Every other /api/* request is
// relayed verbatim to the upstream.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/logger"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/header"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/metrics"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/upstream"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/worker"
)

const shutdownTimeout = 10 * time.Second

// Options carries the collaborators of a Proxy. All fields are optional.
type Options struct {
	Logger *slog.Logger

	// Upstream overrides the client built from the configuration.
	Upstream *upstream.Client

	// WorkerPool receives a session event for every closed stream session.
	// Nil disables session events.
	WorkerPool *worker.Pool

	// Metrics overrides the collector created by New.
	Metrics *metrics.Collector

	// Now is the clock for records and events. Defaults to time.Now.
	Now func() time.Time
}

// Proxy is the Ollama-compatible front of a remote chat completions API.
type Proxy struct {
	config        *config.Config
	upstream      *upstream.Client
	workerPool    *worker.Pool
	metrics       *metrics.Collector
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler
	now           func() time.Time
}

// New creates a new Proxy serving cfg. cfg is treated as read-only.
func New(cfg *config.Config, opts Options) (*Proxy, error) {
	if cfg == nil {
		return nil, errors.New("proxy config is required")
	}

	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	client := opts.Upstream
	if client == nil {
		timeout, err := cfg.ConnectTimeout()
		if err != nil {
			return nil, err
		}
		client, err = upstream.NewClient(upstream.Config{
			URL:            cfg.Upstream.URL,
			APIKey:         cfg.Upstream.APIKey,
			ConnectTimeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create upstream client: %w", err)
		}
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}

	p := &Proxy{
		config:        cfg,
		upstream:      client,
		workerPool:    opts.WorkerPool,
		metrics:       collector,
		logger:        l,
		headerHandler: header.NewHandler(),
		now:           now,
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
		ErrorHandler:      p.handleError,
	})

	app.Use(p.requestContext)
	app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: p.handlePanic,
	}))
	app.Use(cors.New(cors.Config{
		ExposeHeaders: header.RequestIDHeader,
	}))

	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(collector.Handler()))
	}

	app.Get("/health", p.handleHealth)
	app.Get("/", p.handleRoot)
	app.Get("/api/tags", p.handleTags)
	app.Post("/api/chat", p.handleChat)
	app.All("/api/*", p.handlePassthrough)
	app.Use(p.handleNotFound)

	p.server = app
	return p, nil
}

// App exposes the underlying fiber application.
func (p *Proxy) App() *fiber.App {
	return p.server
}

// Run starts the proxy server on the configured listen address.
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr(),
		"upstream", p.upstream.URL(),
		"mode", p.config.Server.Mode,
	)

	return p.server.Listen(p.config.ListenAddr())
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.upstream.URL(),
		"mode", p.config.Server.Mode,
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain.
// Streams still open after the shutdown timeout are cut off.
func (p *Proxy) Close() error {
	err := p.server.ShutdownWithTimeout(shutdownTimeout)
	if p.workerPool != nil {
		p.workerPool.Close()
	}
	return err
}
