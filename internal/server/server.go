// Package server exposes the HTTP surface: the public validate endpoint, the
// gated admin endpoints, health, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/raakeshmj/keymanager/internal/config"
	"github.com/raakeshmj/keymanager/internal/server/middleware"
	"github.com/raakeshmj/keymanager/internal/service"
)

// Pinger is the health-check slice of a store gateway.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server owns the router and the wired services.
type Server struct {
	cfg         config.Config
	router      chi.Router
	validator   *service.Validator
	admin       *service.Admin
	validatorGW Pinger
	managerGW   Pinger
	logger      *zap.Logger
	httpServer  *http.Server
}

// New wires the routes and middleware. Call ListenAndServe to start serving.
func New(cfg config.Config, validator *service.Validator, admin *service.Admin, validatorGW, managerGW Pinger, logger *zap.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		validator:   validator,
		admin:       admin,
		validatorGW: validatorGW,
		managerGW:   managerGW,
		logger:      logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/v1/validate-key", s.handleValidateKey)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminGate(s.cfg.Admin.SharedSecret, writeError))

		r.Post("/v1/mint-key", s.handleMintKey)
		r.Post("/v1/revoke-key", s.handleRevokeKey)
		r.Get("/v1/list-keys", s.handleListKeys)
		r.Post("/v1/admin/create-project", s.handleCreateProject)
		r.Get("/v1/admin/project/{projectID}", s.handleGetProject)
	})

	s.router = r
}

// Handler exposes the router; tests drive it directly.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the process receives SIGINT/SIGTERM, then
// drains within the configured shutdown timeout.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleHealth answers 200 only when the store is reachable under both
// principals.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.validatorGW.Ping(r.Context()); err != nil {
		s.logger.Warn("health: validator principal unreachable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "store unreachable")
		return
	}
	if err := s.managerGW.Ping(r.Context()); err != nil {
		s.logger.Warn("health: manager principal unreachable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
