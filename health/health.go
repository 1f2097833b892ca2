// Package health serves the daemon's health, readiness and metrics
// endpoints.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
)

// Server exposes /health (liveness), /ready (readiness, 503 until the
// first config load) and /metrics (prometheus).
type Server struct {
	log      *slog.Logger
	registry *prometheus.Registry
	ready    atomic.Bool
}

// NewServer creates a health server around the given metrics registry.
func NewServer(log *slog.Logger, registry *prometheus.Registry) *Server {
	return &Server{log: log, registry: registry}
}

// Registry returns the prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// MarkReady flips the readiness endpoint to 200.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// MarkNotReady flips the readiness endpoint back to 503.
func (s *Server) MarkNotReady() {
	s.ready.Store(false)
}

// Handler builds the echo handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.NewWithConfig(s.log, slogecho.Config{
		DefaultLevel: slog.LevelDebug,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	e.GET("/ready", func(c echo.Context) error {
		if s.ready.Load() {
			return c.String(http.StatusOK, "READY")
		}
		return c.String(http.StatusServiceUnavailable, "NOT READY")
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		s.registry,
		promhttp.HandlerOpts{Registry: s.registry},
	)))

	return e
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	s.log.Info("health server started", "port", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
