// Package server serves deployment history over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/crowdfund-deploy/internal/auth"
	"github.com/pendergraft/crowdfund-deploy/internal/config"
	deploymentsDomain "github.com/pendergraft/crowdfund-deploy/internal/deployments/domain"
	deploymentsTransport "github.com/pendergraft/crowdfund-deploy/internal/deployments/transport"
	"github.com/pendergraft/crowdfund-deploy/internal/middleware/logging"
	"github.com/pendergraft/crowdfund-deploy/internal/middleware/ratelimit"
	"github.com/pendergraft/crowdfund-deploy/internal/observability/metrics"
)

// shutdownTimeout bounds how long in-flight requests may run after Run's
// context is cancelled
const shutdownTimeout = 30 * time.Second

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *chi.Mux

	deploymentsSvc deploymentsTransport.Service
}

// New creates a new server reading from store. Background work stops when
// ctx is cancelled.
func New(ctx context.Context, cfg *config.Config, store deploymentsDomain.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		logger:         logger,
		router:         chi.NewRouter(),
		deploymentsSvc: deploymentsDomain.NewService(store),
	}

	s.setupMiddleware(ctx)
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)

	rl := s.cfg.Server.RateLimit
	if rl.Enabled {
		limiter := ratelimit.New(ctx, ratelimit.Config{
			Enabled:        rl.Enabled,
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.BurstSize,
		})
		s.router.Use(limiter.Middleware)
	}

	// CORS, read-only
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	deploymentsHandler := deploymentsTransport.NewHandler(s.deploymentsSvc)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.cfg.Server.APIKey, writeError))
		r.Route("/deployments", deploymentsHandler.RegisterRoutes)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"network": s.cfg.Network.Name,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, deploymentsTransport.ErrorResponse{
		Error: deploymentsTransport.ErrorDetail{Code: code, Message: message},
	})
}
