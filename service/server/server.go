package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewatch/gatewatch/service/config"
	"github.com/gatewatch/gatewatch/service/metrics"
	"github.com/gatewatch/gatewatch/service/ws"
)

// Server represents the HTTP server for the watch service.
type Server struct {
	addr    string
	cfg     *config.Config
	store   EventStore
	watches WatchRegistry
	hub     *ws.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The hub is optional - if nil, the WebSocket endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store EventStore, watches WatchRegistry, hub *ws.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		cfg:     cfg,
		store:   store,
		watches: watches,
		hub:     hub,
		metrics: m,
		logger:  logger,
	}
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Watch routes
	mux.Handle("POST /api/v1/watches", handleAddWatch(s.watches, s.logger))
	mux.Handle("DELETE /api/v1/watches/{address}", handleRemoveWatch(s.watches, s.logger))
	mux.Handle("GET /api/v1/watches", handleListWatches(s.watches, s.logger))
	mux.Handle("GET /api/v1/watches/stats", handleWatchStats(s.watches, s.logger))

	// Event read path, used by clients catching up after a reconnect
	mux.Handle("GET /api/v1/events", handleListEvents(s.store, s.logger))

	// WebSocket subscriptions (if the hub is configured)
	if s.hub != nil {
		mux.Handle("GET /api/v1/ws", handleWebSocket(s.hub, s.logger))
		s.logger.Info("WebSocket endpoint enabled")
	} else {
		s.logger.Warn("subscription hub not configured, WebSocket endpoint disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// The WebSocket route bypasses the metrics wrapper: hijacked
	// connections can't go through a wrapped ResponseWriter, and the hub
	// keeps its own connection metrics.
	instrumented := metrics.HTTPMetricsMiddleware(s.metrics)(mux)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/ws" {
			mux.ServeHTTP(w, r)
			return
		}
		instrumented.ServeHTTP(w, r)
	})

	handler := corsMiddleware(routed)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
