package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/aggregator"
	"github.com/mediolano-app/mip-activity-aggregator/internal/connection"
	"github.com/mediolano-app/mip-activity-aggregator/internal/metrics"
	"github.com/mediolano-app/mip-activity-aggregator/internal/storage"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// AggregatorFactory builds a feed aggregator for one subject address. The
// server creates one lazily per distinct address and keeps it for the
// process lifetime so pagination state survives across requests.
type AggregatorFactory func(subject string) *aggregator.Aggregator

// HTTPServer exposes the activity feed over HTTP
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	store          storage.Store
	connection     connection.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger

	newAggregator AggregatorFactory

	mu    sync.Mutex
	feeds map[string]*aggregator.Aggregator
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Store,
	conn connection.Manager,
	factory AggregatorFactory,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {
	if factory == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "aggregator factory is required")
	}

	server := &HTTPServer{
		config:         config,
		store:          store,
		connection:     conn,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		newAggregator:  factory,
		feeds:          make(map[string]*aggregator.Aggregator),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Activity feed endpoints
	api.HandleFunc("/activities", s.activitiesHandler).Methods("GET")
	api.HandleFunc("/activities/more", s.loadMoreHandler).Methods("POST")
}

// feedFor returns the aggregator for a subject, creating it on first use.
func (s *HTTPServer) feedFor(subject string) (*aggregator.Aggregator, bool) {
	canonical := utils.ToCanonicalAddress(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	if agg, ok := s.feeds[canonical]; ok {
		return agg, false
	}
	agg := s.newAggregator(canonical)
	s.feeds[canonical] = agg
	return agg, true
}

// feedResponse is the wire shape of one feed snapshot.
type feedResponse struct {
	aggregator.Feed
	HasNextPage bool   `json:"has_next_page"`
	Address     string `json:"address"`
}

// activitiesHandler serves the current feed for an address, fetching the
// first page of every stream when the address is seen for the first time.
func (s *HTTPServer) activitiesHandler(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("address")
	if subject == "" {
		s.writeError(w, http.StatusBadRequest, "Query parameter 'address' is required", nil)
		return
	}

	agg, created := s.feedFor(subject)
	if created {
		if err := agg.LoadMore(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Initial feed load failed")
		}
	}

	s.writeFeed(w, subject, agg)
}

// loadMoreHandler advances every stream that still has a next page.
func (s *HTTPServer) loadMoreHandler(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("address")
	if subject == "" {
		s.writeError(w, http.StatusBadRequest, "Query parameter 'address' is required", nil)
		return
	}

	agg, _ := s.feedFor(subject)
	if err := agg.LoadMore(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Feed load-more failed")
	}

	s.writeFeed(w, subject, agg)
}

func (s *HTTPServer) writeFeed(w http.ResponseWriter, subject string, agg *aggregator.Aggregator) {
	feed := agg.Feed()

	if s.metricsManager != nil {
		status := "ok"
		if feed.Error != "" {
			status = "error"
		}
		s.metricsManager.Prometheus().RecordFeedServed(status, len(feed.Activities))
	}

	s.writeJSON(w, http.StatusOK, feedResponse{
		Feed:        feed,
		HasNextPage: agg.HasNextPage(),
		Address:     utils.ToCanonicalAddress(subject),
	})
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         "1.0.0",
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns per-component health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{}
	healthy := true

	if s.store != nil {
		cacheErr := s.store.Ping()
		components["cache"] = cacheErr == nil
		if cacheErr != nil {
			healthy = false
		}
	}
	if s.connection != nil {
		rpcErr := s.connection.HealthCheck(r.Context())
		components["starknet_rpc"] = rpcErr == nil
		if rpcErr != nil {
			healthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"version":    "1.0.0",
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"metrics_enabled": s.config.EnableMetrics,
	}

	if s.store != nil {
		if cacheStats, err := s.store.Stats(r.Context()); err == nil {
			stats["cache"] = cacheStats
		}
	}
	if s.connection != nil {
		stats["connection"] = s.connection.Stats()
	}

	s.mu.Lock()
	feeds := make(map[string]aggregator.Stats, len(s.feeds))
	for subject, agg := range s.feeds {
		feeds[subject] = agg.Stats()
	}
	s.mu.Unlock()
	stats["feeds"] = feeds

	s.writeJSON(w, http.StatusOK, stats)
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	// Seed health and system metrics so they appear on the first scrape
	if s.metricsManager != nil {
		s.updateComponentMetrics(context.Background())
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.updateComponentMetrics(context.Background())
	}
}

func (s *HTTPServer) updateComponentMetrics(ctx context.Context) {
	s.metricsManager.UpdateSystemMetrics()
	prom := s.metricsManager.Prometheus()

	if s.store != nil {
		prom.UpdateComponentHealth("cache", s.store.Ping() == nil)
		if cacheStats, err := s.store.Stats(ctx); err == nil {
			prom.UpdateCacheEntries(cacheStats.TotalEntries)
		}
	}
	if s.connection != nil {
		prom.UpdateComponentHealth("starknet_rpc", s.connection.IsConnected())
	}
}

// Stop stops the HTTP server and tears down every feed
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	s.mu.Lock()
	for _, agg := range s.feeds {
		agg.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).WithError(err).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
