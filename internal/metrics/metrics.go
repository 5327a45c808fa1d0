// Package metrics exposes Prometheus instrumentation for the auth service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Tabilist auth core.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session lifecycle metrics.
	AuthSuccessesTotal *prometheus.CounterVec
	AuthFailuresTotal  *prometheus.CounterVec

	// Request-gate metrics.
	RateLimitRejectionsTotal prometheus.Counter
	CSRFRejectionsTotal      prometheus.Counter

	// Refresh-token sweeper metrics.
	SweepsTotal      prometheus.Counter
	SweptTokensTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabilist_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabilist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabilist_auth_successes_total",
			Help: "Total number of successful auth operations.",
		}, []string{"operation"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabilist_auth_failures_total",
			Help: "Total number of failed auth operations.",
		}, []string{"operation"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabilist_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		CSRFRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabilist_csrf_rejections_total",
			Help: "Total number of requests rejected by the CSRF guard.",
		}),

		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabilist_refresh_token_sweeps_total",
			Help: "Total number of expired refresh token sweep passes.",
		}),

		SweptTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabilist_refresh_tokens_swept_total",
			Help: "Total number of expired refresh tokens deleted by the sweeper.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabilist_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthSuccessesTotal,
		m.AuthFailuresTotal,
		m.RateLimitRejectionsTotal,
		m.CSRFRejectionsTotal,
		m.SweepsTotal,
		m.SweptTokensTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthSuccess increments the auth success counter for the given operation.
func (m *Metrics) IncAuthSuccess(operation string) {
	m.AuthSuccessesTotal.WithLabelValues(operation).Inc()
}

// IncAuthFailure increments the auth failure counter for the given operation.
func (m *Metrics) IncAuthFailure(operation string) {
	m.AuthFailuresTotal.WithLabelValues(operation).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncCSRFRejection increments the CSRF rejection counter.
func (m *Metrics) IncCSRFRejection() {
	m.CSRFRejectionsTotal.Inc()
}

// RecordSweep records a sweeper pass and the number of tokens it deleted.
func (m *Metrics) RecordSweep(deleted int64) {
	m.SweepsTotal.Inc()
	m.SweptTokensTotal.Add(float64(deleted))
}
