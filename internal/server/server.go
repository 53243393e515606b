// Package server exposes the delivery handler over HTTP. It is compatible
// with an Azure Functions custom handler: the function route is
// /api/HttpEmail and the port comes from the host.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shineum/http-email/internal/handler"
	"github.com/shineum/http-email/internal/request"
)

// shutdownTimeout is the maximum time to wait for in-flight requests
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// InvocationHeader carries the invocation id on every delivery response.
const InvocationHeader = "X-Invocation-Id"

// Invoker runs one delivery invocation. *handler.Handler satisfies it.
type Invoker interface {
	Handle(ctx context.Context, params request.Params) (handler.Outcome, error)
}

// Config holds the configuration for an HTTP server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// Invoker handles delivery requests.
	Invoker Invoker

	// Gatherer backs /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
}

// Server serves the delivery API, health checks and metrics.
type Server struct {
	config Config
	router chi.Router

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{config: cfg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withMetrics)

	for _, path := range []string{"/api/HttpEmail", "/api/send"} {
		r.Get(path, s.handleSend)
		r.Post(path, s.handleSend)
	}
	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully,
// waiting up to 30 seconds for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("HTTP server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown timeout reached, forcing close", "error", err)
		return srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	params, err := request.FromHTTP(r)
	if err != nil {
		slog.Warn("failed to read request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	out, err := s.config.Invoker.Handle(r.Context(), params)
	if out.InvocationID != "" {
		w.Header().Set(InvocationHeader, out.InvocationID)
	}
	if err != nil {
		kind := handler.Classify(err)
		msg := err.Error()
		if kind == handler.KindInternal {
			msg = "internal error"
		}
		writeJSON(w, StatusFor(kind), errorBody{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusFor maps a failure kind to an HTTP status.
func StatusFor(kind handler.Kind) int {
	switch kind {
	case handler.KindNone:
		return http.StatusOK
	case handler.KindMissingField:
		return http.StatusBadRequest
	case handler.KindNotFound:
		return http.StatusNotFound
	case handler.KindCredential, handler.KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
