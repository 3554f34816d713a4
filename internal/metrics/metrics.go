// Package metrics holds the Prometheus collectors exposed on /metrics.
//
// Every recording method tolerates a nil *Metrics so components can be
// constructed without instrumentation in tests and tools.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calybase"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	auditFlushes  *prometheus.CounterVec
	auditWritten  prometheus.Counter
	auditDropped  prometheus.Counter
	auditBuffered prometheus.Gauge

	permissionChecks *prometheus.CounterVec
	configCache      *prometheus.CounterVec
	importedMembers  prometheus.Counter
}

// New creates a collector set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		auditFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_flushes_total",
			Help:      "Audit buffer flush attempts by result.",
		}, []string{"result"}),
		auditWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_written_total",
			Help:      "Audit entries persisted by the store.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_dropped_total",
			Help:      "Audit entries discarded because the buffer bound was reached.",
		}),
		auditBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_buffer_entries",
			Help:      "Audit entries waiting in the in-memory buffer.",
		}),
		permissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_checks_total",
			Help:      "Capability checks by capability and outcome.",
		}, []string{"capability", "granted"}),
		configCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "system_config_cache_total",
			Help:      "System configuration cache lookups by result.",
		}, []string{"result"}),
		importedMembers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_imported_total",
			Help:      "Member records written by roster imports.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.auditFlushes,
		m.auditWritten,
		m.auditDropped,
		m.auditBuffered,
		m.permissionChecks,
		m.configCache,
		m.importedMembers,
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware records request count and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) AuditFlush(result string, written int) {
	if m == nil {
		return
	}
	m.auditFlushes.WithLabelValues(result).Inc()
	if written > 0 {
		m.auditWritten.Add(float64(written))
	}
}

func (m *Metrics) AuditDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.auditDropped.Add(float64(n))
}

func (m *Metrics) AuditBuffered(n int) {
	if m == nil {
		return
	}
	m.auditBuffered.Set(float64(n))
}

func (m *Metrics) PermissionCheck(capability string, granted bool) {
	if m == nil {
		return
	}
	m.permissionChecks.WithLabelValues(capability, strconv.FormatBool(granted)).Inc()
}

func (m *Metrics) ConfigCache(result string) {
	if m == nil {
		return
	}
	m.configCache.WithLabelValues(result).Inc()
}

func (m *Metrics) MembersImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedMembers.Add(float64(n))
}
