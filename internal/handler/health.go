package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports backing-store liveness. The in-memory store has no
// failure mode and passes a nil Pinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker reports event-transport liveness.
type ConnChecker interface {
	IsConnected() bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store     Pinger
	transport ConnChecker
	startedAt time.Time
	version   string
}

// NewHealthHandler creates a health handler. store and transport may be
// nil when the deployment runs without that dependency.
func NewHealthHandler(store Pinger, transport ConnChecker, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		transport: transport,
		startedAt: time.Now(),
		version:   version,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).String(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			checks["store"] = "unreachable"
			healthy = false
		} else {
			checks["store"] = "ok"
		}
	}

	if h.transport != nil {
		if h.transport.IsConnected() {
			checks["events"] = "ok"
		} else {
			checks["events"] = "disconnected"
			healthy = false
		}
	}

	status := http.StatusOK
	body := map[string]any{"status": "ready", "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
