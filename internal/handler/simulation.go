package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/fault"
)

// ErrorSimulationEnable serves POST /api/error-simulation/enable. The body
// is a partial map of category name to flag; unknown keys reject the whole
// request and leave the config untouched.
func (h *Handler) ErrorSimulationEnable(w http.ResponseWriter, r *http.Request) {
	h.simulationEnable(w, r, h.injector)
}

// ErrorSimulationStatus serves GET /api/error-simulation/status.
func (h *Handler) ErrorSimulationStatus(w http.ResponseWriter, r *http.Request) {
	config, known := h.injector.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulation_config":    config,
		"available_categories": known,
		"total_requests":       h.tracker.Snapshot().TotalRequests,
		"timestamp":            time.Now().UTC(),
	})
}

// HealthSimulationEnable serves POST /api/health-simulation/enable.
func (h *Handler) HealthSimulationEnable(w http.ResponseWriter, r *http.Request) {
	h.simulationEnable(w, r, h.health.Injector())
}

// HealthSimulationStatus serves GET /api/health-simulation/status.
func (h *Handler) HealthSimulationStatus(w http.ResponseWriter, r *http.Request) {
	config, known := h.health.Injector().Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulation_config":     config,
		"available_categories":  known,
		"health_check_failures": h.health.Failures(),
		"total_requests":        h.tracker.Snapshot().TotalRequests,
		"timestamp":             time.Now().UTC(),
	})
}

func (h *Handler) simulationEnable(w http.ResponseWriter, r *http.Request, inj *fault.Injector) {
	var updates map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.errh.WriteValidationError(w, r, "Body must be a JSON object of category to boolean")
		return
	}

	config, err := inj.Set(updates)
	if err != nil {
		var invalid *fault.ErrInvalidCategory
		if errors.As(err, &invalid) {
			h.errh.WriteValidationError(w, r, err.Error())
			return
		}
		h.errh.WriteInternalError(w, r, "Failed to update simulation config")
		return
	}

	h.logger.Info("simulation config updated",
		zap.String("subsystem", inj.Subsystem()),
		zap.Any("updates", updates),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "Simulation configuration updated",
		"simulation_config": config,
		"timestamp":         time.Now().UTC(),
	})
}

// ErrorTracking serves GET /api/error-tracking.
func (h *Handler) ErrorTracking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// ResetErrors serves POST /api/reset-errors. One call returns the whole
// process to a clean baseline: counters zeroed, every fault category on
// both subsystems disabled.
func (h *Handler) ResetErrors(w http.ResponseWriter, r *http.Request) {
	h.tracker.Reset()
	h.health.ResetFailures()
	h.injector.DisableAll()
	h.health.Injector().DisableAll()

	h.logger.Info("error tracking and simulation state reset")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Error tracking reset and all fault simulation disabled",
		"timestamp": time.Now().UTC(),
	})
}
