package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type predictRequest struct {
	Features []float64 `json:"features"`
}

// Predict serves POST /api/predict. The "model" is a sum over the feature
// vector; the point is the persistence and error surface, not the score.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errh.WriteValidationError(w, r, "All features must be numeric values")
		return
	}
	if len(req.Features) == 0 {
		h.errh.WriteValidationError(w, r, "Features list cannot be empty")
		return
	}

	var prediction float64
	for _, f := range req.Features {
		prediction += f
	}

	id, err := h.predictions.Append(req.Features, prediction)
	if err != nil {
		h.logger.Error("failed to persist prediction", zap.Error(err))
		h.errh.WriteInternalError(w, r, "Failed to store prediction")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         id,
		"prediction": prediction,
		"features":   req.Features,
		"timestamp":  time.Now().UTC(),
	})
}

// Train serves GET /api/train. Training is a long blocking sleep that runs
// to completion even if the client gives up, so slow-endpoint tracing has
// something real to measure.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	duration := h.injector.Uniform(5*time.Second, 20*time.Second)
	h.logger.Info("training started", zap.Duration("duration", duration))
	time.Sleep(duration)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "training completed",
		"duration_seconds": duration.Seconds(),
		"timestamp":        time.Now().UTC(),
	})
}

// Data serves GET /api/data, newest predictions first.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	predictions, err := h.predictions.List()
	if err != nil {
		h.logger.Error("failed to read predictions", zap.Error(err))
		h.errh.WriteInternalError(w, r, "Failed to read prediction data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": predictions,
		"count":       len(predictions),
	})
}
