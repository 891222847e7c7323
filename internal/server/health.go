package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnreachable  = "unreachable"
)

// storePingTimeout bounds the credential store check of a readiness probe.
const storePingTimeout = 2 * time.Second

// Pinger is implemented by dependencies that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	store        Pinger
	startTime    time.Time
}

// NewHealthChecker creates a HealthChecker. store may be nil.
func NewHealthChecker(store Pinger) *HealthChecker {
	h := &HealthChecker{
		store:     store,
		startTime: time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetShuttingDown marks the server as draining.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// The credential store is pinged on every probe.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		} else {
			checks["ready"] = healthStatusOK
		}

		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		if h.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
			err := h.store.Ping(ctx)
			cancel()
			if err != nil {
				checks["store"] = healthStatusUnreachable
				allOk = false
			} else {
				checks["store"] = healthStatusOK
			}
		}

		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		status := http.StatusOK
		if !allOk {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		status := http.StatusOK
		switch {
		case !h.ready.Load():
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}
