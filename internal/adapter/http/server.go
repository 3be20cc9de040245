package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/site-registry/internal/domain"
)

// Server exposes the site routes alongside health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /sites routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, sites SiteService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	h := &siteHandlers{svc: sites, logger: logger}
	mux.HandleFunc("POST /sites/{tenant}", h.create)
	mux.HandleFunc("GET /sites/{tenant}/nearby", h.nearby)
	mux.HandleFunc("PUT /sites/{tenant}/{id}/refresh", h.refresh)
	mux.HandleFunc("GET /sites/{tenant}/{id}/airqlouds", h.airqlouds)
	mux.HandleFunc("GET /sites/{tenant}/{id}/weather-station", h.weatherStation)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := domain.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	body := map[string]string{"error": err.Error()}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		body["field"] = conflict.Field
	}
	writeJSON(w, status, body)
}
