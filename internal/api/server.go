// Package api implements the optional local control-plane HTTP surface: a
// concrete, testable stand-in for a UI layer, which the ingestion pipeline
// itself has no dependency on. It exposes the coordinator's
// Start/Stop/List/ActiveCount operations and a per-channel
// server-sent-events status stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tardsplaya/tardsplayad/internal/api/middleware"
	"github.com/tardsplaya/tardsplayad/internal/config"
	"github.com/tardsplaya/tardsplayad/internal/coordinator"
	"github.com/tardsplaya/tardsplayad/internal/version"
)

// Server is the control-plane HTTP server.
type Server struct {
	cfg        config.APIConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a control-plane Server wired to coord, with routes
// registered for every control-plane operation.
func NewServer(cfg config.APIConfig, coord *coordinator.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("tardsplayad control plane", version.Short())
	humaConfig.Info.Description = "Multi-stream HLS ingestion and dispatch engine control plane"
	humaConfig.DocsPath = ""

	api := humachi.New(router, humaConfig)

	s := &Server{cfg: cfg, router: router, api: api, logger: logger}

	streamsHandler := NewStreamsHandler(coord)
	streamsHandler.Register(api)
	streamsHandler.RegisterSSE(router)

	healthHandler := NewHealthHandler(coord)
	healthHandler.Register(api)

	return s
}

// Router exposes the chi router for tests and additional route registration.
func (s *Server) Router() *chi.Mux { return s.router }

// API exposes the huma API for additional operation registration.
func (s *Server) API() huma.API { return s.api }

// ListenAndServe starts the control-plane server and blocks until ctx is
// cancelled, then gracefully shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the SSE stream writes indefinitely
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting control-plane server", slog.String("address", s.cfg.Address()))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("control-plane server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down control-plane server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down control-plane server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
