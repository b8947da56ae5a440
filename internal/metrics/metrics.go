// Package metrics exposes the Prometheus collectors used by the API.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventPublishTotal *prometheus.CounterVec

	// Document validation metrics
	SchemaValidationTotal *prometheus.CounterVec

	// Authorization outcomes by kind, operation and decision (allow, deny_unauthenticated, deny_forbidden, not_found)
	AuthzDecisionTotal *prometheus.CounterVec

	// Statistics events by kind (views, clicks) and whether a visitor id was supplied
	StatisticsEventTotal *prometheus.CounterVec

	// Key set fetches by outcome (ok, error, breaker_open, stale)
	JWKSFetchTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics returns the process-wide Metrics, creating and registering it on first use.
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lulinks_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_storage_operations_total",
			Help: "Total number of storage operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lulinks_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_event_publish_total",
			Help: "Total number of event publish operations",
		}, []string{"event_type", "status"}),

		SchemaValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_schema_validation_total",
			Help: "Total number of document validations",
		}, []string{"kind", "status"}),

		AuthzDecisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_authz_decisions_total",
			Help: "Authorization decisions by resource kind and operation",
		}, []string{"kind", "op", "decision"}),

		StatisticsEventTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_statistics_events_total",
			Help: "Recorded statistics events",
		}, []string{"event", "identified"}),

		JWKSFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lulinks_jwks_fetch_total",
			Help: "Signing key set fetches by outcome",
		}, []string{"outcome"}),
	}

	m.HTTPRequestTotal = registerOrGet(m.HTTPRequestTotal).(*prometheus.CounterVec)
	m.HTTPRequestDuration = registerOrGet(m.HTTPRequestDuration).(*prometheus.HistogramVec)
	m.StorageOperationTotal = registerOrGet(m.StorageOperationTotal).(*prometheus.CounterVec)
	m.StorageOperationDuration = registerOrGet(m.StorageOperationDuration).(*prometheus.HistogramVec)
	m.EventPublishTotal = registerOrGet(m.EventPublishTotal).(*prometheus.CounterVec)
	m.SchemaValidationTotal = registerOrGet(m.SchemaValidationTotal).(*prometheus.CounterVec)
	m.AuthzDecisionTotal = registerOrGet(m.AuthzDecisionTotal).(*prometheus.CounterVec)
	m.StatisticsEventTotal = registerOrGet(m.StatisticsEventTotal).(*prometheus.CounterVec)
	m.JWKSFetchTotal = registerOrGet(m.JWKSFetchTotal).(*prometheus.CounterVec)

	globalMetrics = m
	return m
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
