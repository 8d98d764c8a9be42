package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/restaurant-reviews/internal/json"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/storage"
)

// HTTPServer manages the HTTP server lifecycle
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a new HTTP server with the given handler and address
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": h.server.Addr,
	})
	return nil
}

// HealthHandler reports whether the process and its data store are up
type HealthHandler struct {
	storage storage.Storage
	monitor *storage.Monitor
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. monitor may be nil.
func NewHealthHandler(s storage.Storage, monitor *storage.Monitor) *HealthHandler {
	return &HealthHandler{storage: s, monitor: monitor, timeout: 2 * time.Second}
}

type healthResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage"`
	LastCheck string `json:"last_check,omitempty"`
}

// ServeHTTP implements http.Handler for health checks
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Storage: "ok"}
	if h.monitor != nil {
		if last, _ := h.monitor.Status(); !last.IsZero() {
			resp.LastCheck = last.UTC().Format(time.RFC3339)
		}
	}

	if err := h.storage.Ping(ctx); err != nil {
		log.LogWarnWithFields("http", "Health check failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "storage unreachable: "+err.Error())
		return
	}
	_ = jsonwriter.Write(w, resp)
}
