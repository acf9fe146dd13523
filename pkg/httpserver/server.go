// Package httpserver exposes the ledger over a REST API plus the metrics,
// health, and event-stream endpoints.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/storage"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/cache"
	"github.com/yieldledger/yieldledger/pkg/healthprobe"
	"github.com/yieldledger/yieldledger/pkg/stream"
	"go.uber.org/zap"
)

// Server provides the HTTP surface of the ledger.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port     string
	Logger   *zap.Logger
	Probe    *healthprobe.Probe
	Terms    *terms.Registry
	Ledger   *ledger.Ledger
	Market   *market.Market
	Storage  storage.Storage
	Hub      *stream.Hub
	Cache    cache.Cache
	CacheTTL time.Duration
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.Probe.Health())
	r.Get("/ready", cfg.Probe.Ready())

	h := newHandler(cfg)
	r.Mount("/api", h.routes())

	if cfg.Hub != nil {
		r.Get("/api/stream", cfg.Hub.Handler())
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server: server,
		logger: cfg.Logger,
	}
}

// Handler exposes the router. Used in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
