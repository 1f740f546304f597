package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// Portal access outcomes used as metric labels.
const (
	PortalOutcomeFirst   = "first"
	PortalOutcomeRepeat  = "repeat"
	PortalOutcomeExpired = "expired"
	PortalOutcomeInvalid = "invalid"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	transitions     *prometheus.CounterVec
	portalAccess    *prometheus.CounterVec
	portalUploads   *prometheus.CounterVec
	notifications   *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
	portalViewCount      uint64
	portalUploadCount    uint64
}

// NewMetricsService registers core Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "declaration_transitions_total",
			Help: "Declaration status transitions by target status and actor kind",
		}, []string{"to", "actor"}),
		portalAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_views_total",
			Help: "Client portal page loads by outcome",
		}, []string{"outcome"}),
		portalUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_uploads_total",
			Help: "Client portal uploads by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound client notifications by channel and result",
		}, []string{"channel", "result"}),
	}

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheLatency = cacheLatency

	registry.MustRegister(
		m.requestDuration, m.requestTotal, cacheLatency, m.cacheHits, m.cacheMisses,
		m.transitions, m.portalAccess, m.portalUploads, m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordTransition counts an applied status change.
func (m *MetricsService) RecordTransition(to models.DeclarationStatus, actor models.Actor) {
	if m == nil {
		return
	}
	kind := "staff"
	if actor.IsSystem() {
		kind = "system"
	}
	m.transitions.WithLabelValues(string(to), kind).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
}

// RecordPortalView counts a portal page load by outcome.
func (m *MetricsService) RecordPortalView(outcome string) {
	if m == nil {
		return
	}
	m.portalAccess.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.portalViewCount, 1)
}

// RecordPortalUpload counts a portal upload attempt by result.
func (m *MetricsService) RecordPortalUpload(result string) {
	if m == nil {
		return
	}
	m.portalUploads.WithLabelValues(result).Inc()
	if result == "ok" {
		atomic.AddUint64(&m.portalUploadCount, 1)
	}
}

// RecordNotification counts a notification delivery attempt.
func (m *MetricsService) RecordNotification(channel, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

// Snapshot returns aggregated metrics suitable for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		Transitions:              atomic.LoadUint64(&m.transitionCount),
		PortalViews:              atomic.LoadUint64(&m.portalViewCount),
		PortalUploads:            atomic.LoadUint64(&m.portalUploadCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
