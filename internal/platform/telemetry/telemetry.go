// Package telemetry exposes Prometheus metrics for the gateway: HTTP server
// traffic, field authorization decisions and connection pool gauges.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homerev/api/internal/platform/authz"
	"github.com/homerev/api/internal/platform/db"
	"github.com/homerev/api/internal/platform/middleware"
)

const namespace = "homerev"

// MetricsPath is not itself measured.
const MetricsPath = "/metrics"

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Provider owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Provider struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	decisions      *prometheus.CounterVec
	auditFailures  prometheus.Counter
	poolConns      *prometheus.GaugeVec
}

// NewProvider registers all collectors, including the Go runtime and process
// collectors.
func NewProvider() *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   defaultDurationBuckets,
		}, []string{"method", "route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Requests currently being served.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Field authorization decisions by field, access origin and outcome.",
		}, []string{"field", "origin", "outcome"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_record_failures_total",
			Help:      "Audit entries that could not be written to the audit stream.",
		}),
		poolConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Users store pool connections by state.",
		}, []string{"state"}),
	}
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.requests,
		p.duration,
		p.activeRequests,
		p.decisions,
		p.auditFailures,
		p.poolConns,
	)
	return p
}

// Registry is exposed for tests.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// Middleware records request counts and latency per route pattern.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.URL.Path == MetricsPath {
				return next(c)
			}

			p.activeRequests.Inc()
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()
			p.activeRequests.Dec()

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}

			p.requests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
			p.duration.WithLabelValues(req.Method, route).Observe(elapsed)
			return err
		}
	}
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// ObserveDecision implements authz.Observer.
func (p *Provider) ObserveDecision(field string, origin authz.AccessOrigin, d authz.Decision) {
	outcome := "allowed"
	if !d.Allowed {
		outcome = d.Reason.String()
	}
	p.decisions.WithLabelValues(field, origin.String(), outcome).Inc()
}

var _ authz.Observer = (*Provider)(nil)

// CountAuditFailures wraps r so failed writes are counted.
func (p *Provider) CountAuditFailures(r middleware.AuditRecorder) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(ctx context.Context, e middleware.AuditEntry) error {
		err := r.RecordAccess(ctx, e)
		if err != nil {
			p.auditFailures.Inc()
		}
		return err
	})
}

// SetPoolStats updates the pool gauges from a stats snapshot.
func (p *Provider) SetPoolStats(s db.PoolStats) {
	p.poolConns.WithLabelValues("total").Set(float64(s.TotalConns))
	p.poolConns.WithLabelValues("idle").Set(float64(s.IdleConns))
	p.poolConns.WithLabelValues("acquired").Set(float64(s.AcquiredConns))
	p.poolConns.WithLabelValues("max").Set(float64(s.MaxConns))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
