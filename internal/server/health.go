package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// HealthServer provides HTTP health check endpoints for container probes.
type HealthServer struct {
	port   int
	checks map[string]Check
	server *http.Server
	logger *slog.Logger
}

// HealthConfig holds configuration for the health check server.
type HealthConfig struct {
	Port int

	// Checks are run on /health and /ready, keyed by service name.
	Checks map[string]Check

	Logger *slog.Logger
}

// NewHealthServer creates a new health check server.
func NewHealthServer(cfg HealthConfig) *HealthServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthServer{
		port:   cfg.Port,
		checks: cfg.Checks,
		logger: logger,
	}
}

// Handler returns the health endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	return mux
}

// Start begins serving health check requests.
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         net.JoinHostPort("0.0.0.0", strconv.Itoa(h.port)),
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	h.logger.Info("Health check server starting", "port", h.port)
	return h.server.ListenAndServe()
}

// Stop gracefully shuts down the health check server.
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

// runChecks runs every check and reports per-service status.
func (h *HealthServer) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]string, len(names))
	allOK := true
	for _, name := range names {
		err := h.checks[name](ctx)
		if err != nil {
			h.logger.Warn("health check failed", "service", name, "error", err)
			allOK = false
		}
		services[name] = upDownString(err == nil)
	}
	return services, allOK
}

// handleHealth returns combined health status of all services.
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	services, allOK := h.runChecks(r.Context())
	h.sendJSON(w, map[string]any{
		"status":   statusString(allOK),
		"services": services,
	}, statusCode(allOK))
}

// handleReady implements Kubernetes-style readiness probe.
func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	_, allOK := h.runChecks(r.Context())
	h.sendJSON(w, map[string]bool{"ready": allOK}, statusCode(allOK))
}

// handleLive implements Kubernetes-style liveness probe.
func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	// Liveness always returns OK if the server is running
	h.sendJSON(w, map[string]bool{"alive": true}, http.StatusOK)
}

// sendJSON writes a JSON response with the given status code.
func (h *HealthServer) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

// PortCheck reports whether something accepts TCP connections on addr.
func PortCheck(addr string) Check {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Helper functions

func statusString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func upDownString(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
