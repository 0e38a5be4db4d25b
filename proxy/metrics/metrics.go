// Package metrics provides the prometheus collectors of the proxy and the
// handler exposing them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ollamaproxy"

// Collector owns a private registry so that several proxies, e.g. in tests,
// never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	sessionsTotal       *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
	recordsEmitted      prometheus.Counter
	recordsMalformed    prometheus.Counter
	sessionDuration     prometheus.Histogram
	passthroughRequests *prometheus.CounterVec
}

// NewCollector registers all proxy collectors, plus the Go runtime and
// process collectors, on a new registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of closed stream sessions by outcome",
			},
			[]string{"outcome"},
		),

		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of stream sessions currently open",
			},
		),

		recordsEmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_emitted_total",
				Help:      "Total number of records written to clients, terminal records included",
			},
		),

		recordsMalformed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_malformed_total",
				Help:      "Total number of upstream records dropped because they could not be decoded",
			},
		),

		sessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of stream sessions in seconds",
				// Chat completions run from sub-second to several minutes.
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		passthroughRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passthrough_requests_total",
				Help:      "Total number of requests relayed verbatim, by upstream status class",
			},
			[]string{"status_class"},
		),
	}
}

// SessionOpened records a session entering the forwarding state.
func (c *Collector) SessionOpened() {
	c.sessionsActive.Inc()
}

// SessionClosed records a session reaching the closed state.
func (c *Collector) SessionClosed(outcome string, records, malformed int, duration time.Duration) {
	c.sessionsActive.Dec()
	c.sessionsTotal.WithLabelValues(outcome).Inc()
	c.recordsEmitted.Add(float64(records))
	c.recordsMalformed.Add(float64(malformed))
	c.sessionDuration.Observe(duration.Seconds())
}

// PassthroughRequest records one relayed request. A status of 0 means the
// upstream could not be reached.
func (c *Collector) PassthroughRequest(status int) {
	c.passthroughRequests.WithLabelValues(StatusClass(status)).Inc()
}

// Handler returns an HTTP handler for the prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StatusClass maps an HTTP status to "2xx", "4xx", etc. Anything outside
// 100-599 is "error".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
