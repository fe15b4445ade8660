package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the activity aggregator
type PrometheusMetrics struct {
	// Event stream metrics
	StreamFetchesTotal  *prometheus.CounterVec
	EventsLoadedTotal   *prometheus.CounterVec
	StreamFetchDuration *prometheus.HistogramVec

	// Metadata resolution metrics
	MetadataBatchesTotal  *prometheus.CounterVec
	MetadataBatchDuration prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter

	// Feed metrics
	FeedsServedTotal          *prometheus.CounterVec
	ActivitiesClassifiedTotal *prometheus.CounterVec
	FeedSize                  prometheus.Histogram

	// Connection metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge

	// Cache storage metrics
	CacheEntries prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Event stream metrics
		StreamFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_stream_fetches_total",
				Help: "Total number of event stream page fetches",
			},
			[]string{"event_name", "status"},
		),

		EventsLoadedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_events_loaded_total",
				Help: "Total number of raw events loaded from the chain",
			},
			[]string{"event_name"},
		),

		StreamFetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mip_stream_fetch_duration_seconds",
				Help:    "Duration of event stream page fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_name"},
		),

		// Metadata resolution metrics
		MetadataBatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_metadata_batches_total",
				Help: "Total number of transaction metadata batch requests",
			},
			[]string{"status"},
		),

		MetadataBatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mip_metadata_batch_duration_seconds",
				Help:    "Duration of transaction metadata batch requests",
				Buckets: prometheus.DefBuckets,
			},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mip_metadata_cache_hits_total",
				Help: "Total number of transaction metadata cache hits",
			},
		),

		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mip_metadata_cache_misses_total",
				Help: "Total number of transaction metadata cache misses",
			},
		),

		// Feed metrics
		FeedsServedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_feeds_served_total",
				Help: "Total number of activity feeds served",
			},
			[]string{"status"},
		),

		ActivitiesClassifiedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_activities_classified_total",
				Help: "Total number of activities classified, by activity type",
			},
			[]string{"activity_type"},
		),

		FeedSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mip_feed_size",
				Help:    "Number of activities per served feed",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		// Connection metrics
		ConnectionErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_connection_errors_total",
				Help: "Total number of connection errors to Starknet nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_rpc_requests_total",
				Help: "Total number of JSON-RPC requests made to Starknet nodes",
			},
			[]string{"method", "status"},
		),

		// API metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mip_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mip_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Application health metrics
		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mip_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mip_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mip_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mip_goroutines",
				Help: "Number of running goroutines",
			},
		),

		// Cache storage metrics
		CacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mip_metadata_cache_entries",
				Help: "Number of entries in the durable transaction metadata cache",
			},
		),
	}
}

// RecordStreamFetch records one event stream page fetch
func (m *PrometheusMetrics) RecordStreamFetch(eventName string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamFetchesTotal.WithLabelValues(eventName, status).Inc()
}

// RecordEventsLoaded records raw events loaded for one stream
func (m *PrometheusMetrics) RecordEventsLoaded(eventName string, count int) {
	m.EventsLoadedTotal.WithLabelValues(eventName).Add(float64(count))
}

// RecordStreamFetchDuration records the time taken to fetch one page
func (m *PrometheusMetrics) RecordStreamFetchDuration(eventName string, duration time.Duration) {
	m.StreamFetchDuration.WithLabelValues(eventName).Observe(duration.Seconds())
}

// RecordMetadataBatch records one metadata batch request
func (m *PrometheusMetrics) RecordMetadataBatch(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.MetadataBatchesTotal.WithLabelValues(status).Inc()
	m.MetadataBatchDuration.Observe(duration.Seconds())
}

// RecordCacheHits records transaction metadata cache hits
func (m *PrometheusMetrics) RecordCacheHits(count int) {
	m.CacheHitsTotal.Add(float64(count))
}

// RecordCacheMisses records transaction metadata cache misses
func (m *PrometheusMetrics) RecordCacheMisses(count int) {
	m.CacheMissesTotal.Add(float64(count))
}

// RecordFeedServed records one served activity feed
func (m *PrometheusMetrics) RecordFeedServed(status string, size int) {
	m.FeedsServedTotal.WithLabelValues(status).Inc()
	m.FeedSize.Observe(float64(size))
}

// RecordActivityClassified records one classified activity
func (m *PrometheusMetrics) RecordActivityClassified(activityType string) {
	m.ActivitiesClassifiedTotal.WithLabelValues(activityType).Inc()
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records a JSON-RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateCacheEntries updates the durable cache size metric
func (m *PrometheusMetrics) UpdateCacheEntries(count int64) {
	m.CacheEntries.Set(float64(count))
}
