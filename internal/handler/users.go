package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/apierrors"
	"github.com/telemetry-lab/faultline/internal/fault"
	"github.com/telemetry-lab/faultline/internal/store"
)

const defaultListLimit = 10

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   *int   `json:"age"`
}

// CreateUser serves POST /api/users.
//
// Real validation runs before any fault draw, so a malformed request is
// always rejected for the real reason and never masked by a simulated 429
// or 503.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errh.WriteValidationError(w, r, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		h.errh.WriteValidationError(w, r, "Name is required")
		return
	}
	if err := h.users.Validate(req.Email, req.Age); err != nil {
		h.writeUserError(w, r, err)
		return
	}

	if out := h.injector.EvaluateFail("rate_limit_errors", 0.20, fault.FailSpec{
		Status:     http.StatusTooManyRequests,
		Message:    "Rate limit exceeded. Please try again later.",
		RetryAfter: 60 * time.Second,
	}); out.Action == fault.Fail {
		h.errh.WriteRetryError(w, r, out.Status, out.Message, out.RetryAfter)
		return
	}
	if out := h.injector.EvaluateFail("validation_errors", 0.15, fault.FailSpec{
		Status:  http.StatusUnprocessableEntity,
		Message: "Validation failed: Invalid data format detected",
	}); out.Action == fault.Fail {
		h.errh.WriteError(w, r, out.Status, out.Message)
		return
	}
	if out := h.injector.EvaluateFail("database_errors", 0.10, fault.FailSpec{
		Status:  http.StatusServiceUnavailable,
		Message: "Database connection failed. Please try again later.",
	}); out.Action == fault.Fail {
		h.errh.WriteError(w, r, out.Status, out.Message)
		return
	}

	// Simulated processing time.
	time.Sleep(h.injector.Uniform(100*time.Millisecond, 300*time.Millisecond))

	user, err := h.users.Create(req.Name, req.Email, req.Age)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}

	h.logger.Info("user created", zap.Int("id", user.ID), zap.String("email", user.Email))
	writeJSON(w, http.StatusCreated, user)
}

// ListUsers serves GET /api/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.errh.WriteValidationError(w, r, "Offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		h.errh.WriteValidationError(w, r, "Limit must be a positive integer")
		return
	}
	search := r.URL.Query().Get("search")

	if out := h.injector.EvaluateFail("service_errors", 0.05, fault.FailSpec{
		Status:  http.StatusBadGateway,
		Message: "External service dependency failed",
	}); out.Action == fault.Fail {
		h.errh.WriteError(w, r, out.Status, out.Message)
		return
	}

	users := h.users.List(search, offset, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":  users,
		"count":  len(users),
		"total":  h.users.Count(),
		"offset": offset,
		"limit":  limit,
	})
}

// GetUser serves GET /api/users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if out := h.injector.EvaluateFail("random_errors", 0.08, fault.FailSpec{
		Status:  http.StatusInternalServerError,
		Message: "An unexpected error occurred while fetching user",
	}); out.Action == fault.Fail {
		h.errh.WriteError(w, r, out.Status, out.Message)
		return
	}

	user, found := h.users.Get(id)
	if !found {
		h.errh.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("User with id %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser serves DELETE /api/users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if out := h.injector.EvaluateFail("database_errors", 0.10, fault.FailSpec{
		Status:  http.StatusInternalServerError,
		Message: "Database error occurred while deleting user",
	}); out.Action == fault.Fail {
		h.errh.WriteError(w, r, out.Status, out.Message)
		return
	}

	user, err := h.users.Delete(id)
	if err != nil {
		h.errh.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("User with id %d not found", id))
		return
	}

	h.logger.Info("user deleted", zap.Int("id", id))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("User %d deleted", id),
		"user":    user,
	})
}

// SimulateWork serves GET /api/simulate-work. The three failure draws are
// unconditional; this endpoint always carries background noise.
func (h *Handler) SimulateWork(w http.ResponseWriter, r *http.Request) {
	if h.injector.Chance(0.05) {
		h.errh.WriteError(w, r, http.StatusRequestTimeout, "Request processing timeout")
		return
	}
	if h.injector.Chance(0.03) {
		h.errh.WriteError(w, r, http.StatusServiceUnavailable, "Service temporarily overloaded")
		return
	}
	if h.injector.Chance(0.02) {
		h.errh.WriteError(w, r, http.StatusInternalServerError, "Internal processing error")
		return
	}

	delay := h.injector.Uniform(100*time.Millisecond, 500*time.Millisecond)
	time.Sleep(delay)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "completed",
		"processing_time_ms": delay.Milliseconds(),
		"worker_id":          h.injector.Intn(10) + 1,
		"timestamp":          time.Now().UTC(),
	})
}

// TriggerError serves POST /api/trigger-error/{code}. Only allow-listed
// status codes can be triggered; anything else is a 400, not a reflection
// of the requested code.
func (h *Handler) TriggerError(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(mux.Vars(r)["code"])
	if err != nil {
		h.errh.WriteValidationError(w, r, "Error code must be an integer")
		return
	}

	message, supported := apierrors.TriggerMessage(code)
	if !supported {
		h.errh.WriteValidationError(w, r,
			fmt.Sprintf("Unsupported error code: %d. Supported codes: %v", code, apierrors.SupportedTriggerCodes()))
		return
	}
	if custom := r.URL.Query().Get("message"); custom != "" {
		message = custom
	}

	h.logger.Info("triggering error", zap.Int("code", code))
	if apierrors.TriggerRetryAfter(code) {
		h.errh.WriteRetryError(w, r, code, message, 60*time.Second)
		return
	}
	h.errh.WriteError(w, r, code, message)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		h.errh.WriteValidationError(w, r, "User ID must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrEmailExists):
		h.errh.WriteError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidEmail), errors.Is(err, store.ErrInvalidAge):
		h.errh.WriteValidationError(w, r, err.Error())
	case errors.Is(err, store.ErrUserNotFound):
		h.errh.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("user operation failed", zap.Error(err))
		h.errh.WriteInternalError(w, r, "User operation failed")
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
