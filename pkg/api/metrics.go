package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ssargent/akv/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Engine operation metrics
	dbOperationsTotal   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
	dbKeysTotal         prometheus.Gauge
	dbLiveKeys          prometheus.Gauge
	dbTombstones        prometheus.Gauge
	dbDataSizeBytes     prometheus.Gauge

	// Index rebuild metrics
	loadsTotal     *prometheus.CounterVec
	recordsSkipped prometheus.Counter

	authRequestsTotal *prometheus.CounterVec
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "akv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "akv_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akv_db_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"operation", "status"},
		),

		dbOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "akv_db_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		dbKeysTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "akv_db_keys_total",
				Help: "Number of keys in the index, tombstones included",
			},
		),

		dbLiveKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "akv_db_live_keys",
				Help: "Number of keys whose latest record has a value",
			},
		),

		dbTombstones: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "akv_db_tombstones",
				Help: "Number of keys whose latest record is a tombstone",
			},
		),

		dbDataSizeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "akv_db_data_size_bytes",
				Help: "Size of the log file in bytes",
			},
		),

		loadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akv_index_loads_total",
				Help: "Total number of index rebuilds",
			},
			[]string{"status"},
		),

		recordsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "akv_index_records_skipped_total",
				Help: "Records skipped during index rebuilds for failing the checksum",
			},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akv_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "akv_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

func statusLabel(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBOperation records an engine operation
func (m *Metrics) RecordDBOperation(operation string, success bool, duration time.Duration) {
	m.dbOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	m.dbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLoad records an index rebuild
func (m *Metrics) RecordLoad(result *store.LoadResult, success bool) {
	m.loadsTotal.WithLabelValues(statusLabel(success)).Inc()
	if result != nil {
		m.recordsSkipped.Add(float64(result.RecordsSkipped))
	}
}

// UpdateDBStats updates the store gauges
func (m *Metrics) UpdateDBStats(stats *store.StoreStats) {
	m.dbKeysTotal.Set(float64(stats.Keys))
	m.dbLiveKeys.Set(float64(stats.LiveKeys))
	m.dbTombstones.Set(float64(stats.Tombstones))
	m.dbDataSizeBytes.Set(float64(stats.DataSize))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(statusLabel(success)).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware counts authentication outcomes of requests that
// carried a key
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
