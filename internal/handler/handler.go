// Package handler implements the demo API surface: user CRUD, the
// prediction log, simulated work, explicit error triggers, fault simulation
// controls, and the ops endpoints. Every failure path goes through the
// shared error handler so the aggregator sees one consistent stream.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/apierrors"
	"github.com/telemetry-lab/faultline/internal/fault"
	"github.com/telemetry-lab/faultline/internal/health"
	"github.com/telemetry-lab/faultline/internal/latency"
	"github.com/telemetry-lab/faultline/internal/store"
	"github.com/telemetry-lab/faultline/internal/sysinfo"
	"github.com/telemetry-lab/faultline/internal/tracking"
)

// Handler carries the shared dependencies of the API endpoints.
type Handler struct {
	users       *store.UserStore
	predictions *store.PredictionLog
	injector    *fault.Injector
	health      *health.Checker
	tracker     *tracking.Aggregator
	errh        *apierrors.Handler
	system      sysinfo.Reader
	latency     *latency.Tracker
	logger      *zap.Logger
	started     time.Time
}

// Deps bundles the constructor arguments.
type Deps struct {
	Users       *store.UserStore
	Predictions *store.PredictionLog
	Injector    *fault.Injector
	Health      *health.Checker
	Tracker     *tracking.Aggregator
	Errors      *apierrors.Handler
	System      sysinfo.Reader
	Latency     *latency.Tracker
	Logger      *zap.Logger
}

// New creates the API handler set.
func New(d Deps) *Handler {
	return &Handler{
		users:       d.Users,
		predictions: d.Predictions,
		injector:    d.Injector,
		health:      d.Health,
		tracker:     d.Tracker,
		errh:        d.Errors,
		system:      d.System,
		latency:     d.Latency,
		logger:      d.Logger,
		started:     time.Now(),
	}
}

// Injector exposes the api-subsystem injector, for wiring and tests.
func (h *Handler) Injector() *fault.Injector {
	return h.injector
}

// Root serves GET /. Even the banner has a small failure chance so that
// blanket uptime probes occasionally see errors.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if h.injector.Chance(0.01) {
		h.errh.WriteError(w, r, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "faultline",
		"version":   health.Version,
		"status":    "running",
		"timestamp": time.Now().UTC(),
	})
}

// Ping serves GET /ping. No faults here; it is the one endpoint monitoring
// can trust.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
