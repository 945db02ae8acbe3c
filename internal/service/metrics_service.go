package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the domain counters operators alert on: session lifecycle,
// entitlement decisions, and security violations.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	sessionsStarted    prometheus.Counter
	sessionsEnded      *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	entitlementTotal   *prometheus.CounterVec
	violationsTotal    prometheus.Counter
	auditExportsTotal  *prometheus.CounterVec
	mediaFetchDuration prometheus.Histogram
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewing_sessions_started_total",
		Help: "Total secure viewing sessions started",
	})

	sessionsEnded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viewing_sessions_ended_total",
		Help: "Total secure viewing sessions ended, by reason",
	}, []string{"reason"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viewing_sessions_active",
		Help: "Currently active secure viewing sessions",
	})

	entitlementTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Entitlement resolutions, by status",
	}, []string{"status"})

	violationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "security_violations_total",
		Help: "Reported security violation attempts",
	})

	auditExportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_exports_total",
		Help: "Audit export jobs, by outcome",
	}, []string{"outcome"})

	mediaFetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_fetch_duration_seconds",
		Help:    "Duration of media artifact fetches",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sessionsStarted, sessionsEnded,
		activeSessions, entitlementTotal, violationsTotal, auditExportsTotal, mediaFetchDuration, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		sessionsStarted:    sessionsStarted,
		sessionsEnded:      sessionsEnded,
		activeSessions:     activeSessions,
		entitlementTotal:   entitlementTotal,
		violationsTotal:    violationsTotal,
		auditExportsTotal:  auditExportsTotal,
		mediaFetchDuration: mediaFetchDuration,
	}
}

// Handler exposes the Prometheus scrape handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// SessionStarted bumps the start counter and the active gauge.
func (m *MetricsService) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.activeSessions.Inc()
}

// SessionEnded records one ended session with its reason.
func (m *MetricsService) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}

// EntitlementDecision records one resolver outcome.
func (m *MetricsService) EntitlementDecision(status string) {
	if m == nil {
		return
	}
	m.entitlementTotal.WithLabelValues(status).Inc()
}

// SecurityViolation records one reported violation attempt.
func (m *MetricsService) SecurityViolation() {
	if m == nil {
		return
	}
	m.violationsTotal.Inc()
}

// AuditExport records one export job outcome.
func (m *MetricsService) AuditExport(outcome string) {
	if m == nil {
		return
	}
	m.auditExportsTotal.WithLabelValues(outcome).Inc()
}

// ObserveMediaFetch records one artifact delivery duration.
func (m *MetricsService) ObserveMediaFetch(duration time.Duration) {
	if m == nil {
		return
	}
	m.mediaFetchDuration.Observe(duration.Seconds())
}
