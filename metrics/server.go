package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
)

// Server serves the collector's registry over HTTP
type Server struct {
	logger     *zap.Logger
	enabled    bool
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the metrics listener described by the metrics config section
func NewServer(cfg *config.Config, logger *zap.Logger, collector *Collector) *Server {
	return &Server{
		logger:  logger,
		enabled: cfg.Metrics.Enabled,
		httpServer: &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           NewHandler(collector),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// NewHandler returns the router exposing /metrics and /healthz
func NewHandler(collector *Collector) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return router
}

// Addr returns the bound address once started, else the configured one
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Start binds the listener and serves in the background
func (s *Server) Start(_ context.Context) error {
	if !s.enabled {
		s.logger.Info("metrics listener disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("binding metrics listener on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the listener down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.logger.Info("stopping metrics listener")
	return s.httpServer.Shutdown(ctx)
}

// RegisterLifecycle ties the server to the fx application lifecycle
func RegisterLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
