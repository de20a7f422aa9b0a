// Package api serves a key-value store over HTTP.
//
// All routes live under /api/v1 and require an X-API-Key header when the
// server is configured with a key. Values travel as raw request and response
// bodies. Prometheus metrics are served on /metrics without authentication.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsInterval = 30 * time.Second

// NewRouter builds the HTTP handler for server
func NewRouter(server *Server) http.Handler {
	metrics := server.metrics

	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(requestLogger(server.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", metricsHandler(server.config))

	r.Route("/api/v1", func(r chi.Router) {
		if server.config.APIKey != "" {
			r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))
		}

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// KV operations
		r.Put("/kv/{key}", metrics.InstrumentHandler("PUT", "/api/v1/kv/{key}", server.handlePut))
		r.Get("/kv/{key}", metrics.InstrumentHandler("GET", "/api/v1/kv/{key}", server.handleGet))
		r.Delete("/kv/{key}", metrics.InstrumentHandler("DELETE", "/api/v1/kv/{key}", server.handleDelete))
		r.Post("/kv/{key}/raw", metrics.InstrumentHandler("POST", "/api/v1/kv/{key}/raw", server.handleInsertRaw))
		r.Get("/keys", metrics.InstrumentHandler("GET", "/api/v1/keys", server.handleListKeys))

		// Log access
		r.Get("/find/{key}", metrics.InstrumentHandler("GET", "/api/v1/find/{key}", server.handleFind))
		r.Get("/log/{offset}", metrics.InstrumentHandler("GET", "/api/v1/log/{offset}", server.handleGetAt))
		r.Get("/end", metrics.InstrumentHandler("GET", "/api/v1/end", server.handleEnd))
		r.Post("/load", metrics.InstrumentHandler("POST", "/api/v1/load", server.handleLoad))
		r.Post("/sync", metrics.InstrumentHandler("POST", "/api/v1/sync", server.handleSync))

		// Diagnostics
		r.Get("/stats", metrics.InstrumentHandler("GET", "/api/v1/stats", server.handleStats))
	})

	return r
}

func metricsHandler(config ServerConfig) http.Handler {
	if config.Gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})
}

// StartServer serves kv until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, kv KVStore, config ServerConfig) error {
	metrics := NewMetrics(config.Registry)
	server := NewServer(kv, config, metrics)

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info().Str("addr", addr).Msg("starting akv REST API server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	server.logger.Info().Str("addr", addr).Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// startMetricsUpdater refreshes the store gauges until ctx is done
func (s *Server) startMetricsUpdater(ctx context.Context) {
	interval := s.config.MetricsInterval
	if interval <= 0 {
		interval = defaultMetricsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.store.Stats()
			if err != nil {
				s.logger.Warn().Err(err).Msg("refresh store metrics")
				continue
			}
			s.metrics.UpdateDBStats(stats)
		}
	}
}
