// Package apierrors writes the stable JSON failure envelope and feeds every
// failure, injected or organic, into the error aggregator. Handlers never
// write error bodies themselves; everything goes through this package so the
// aggregator sees one consistent stream.
package apierrors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-lab/faultline/internal/tracking"
)

// Classification labels a recorded error for aggregation.
type Classification string

// FromStatus derives the status-based classification, e.g. HTTP_404.
func FromStatus(status int) Classification {
	return Classification(fmt.Sprintf("HTTP_%d", status))
}

// Envelope is the failure response body. Monitoring consumers cannot tell
// injected faults from organic ones; both produce this exact shape.
type Envelope struct {
	Status         string         `json:"status"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	Path           string         `json:"path"`
	Method         string         `json:"method"`
	RequestID      string         `json:"request_id,omitempty"`
}

// triggerMessages is the allow-list for POST /api/trigger-error/{code},
// with the default message per code.
var triggerMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request - Invalid input provided",
	http.StatusUnauthorized:        "Unauthorized - Authentication required",
	http.StatusForbidden:           "Forbidden - Access denied",
	http.StatusNotFound:            "Not Found - Resource does not exist",
	http.StatusConflict:            "Conflict - Resource already exists",
	http.StatusUnprocessableEntity: "Unprocessable Entity - Validation failed",
	http.StatusTooManyRequests:     "Too Many Requests - Rate limit exceeded",
	http.StatusInternalServerError: "Internal Server Error - Server encountered an error",
	http.StatusBadGateway:          "Bad Gateway - Upstream server error",
	http.StatusServiceUnavailable:  "Service Unavailable - Service temporarily down",
	http.StatusGatewayTimeout:      "Gateway Timeout - Upstream server timeout",
}

// TriggerMessage returns the default message for a supported trigger code.
func TriggerMessage(code int) (string, bool) {
	msg, ok := triggerMessages[code]
	return msg, ok
}

// SupportedTriggerCodes lists the allow-listed trigger codes in ascending
// order, for error messages.
func SupportedTriggerCodes() []int {
	codes := make([]int, 0, len(triggerMessages))
	for code := range triggerMessages {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// TriggerRetryAfter reports whether a triggered code carries a Retry-After
// header, matching the 429/503 behaviour of the simulated surface.
func TriggerRetryAfter(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// Recorder receives every recorded classification, for operational
// metrics. The demo-facing aggregator is fed regardless.
type Recorder interface {
	RecordClassifiedError(classification string)
}

// Handler writes failure envelopes and records them.
type Handler struct {
	logger   *zap.Logger
	tracker  *tracking.Aggregator
	recorder Recorder
}

// NewHandler creates an error handler bound to the aggregator.
func NewHandler(logger *zap.Logger, tracker *tracking.Aggregator) *Handler {
	return &Handler{logger: logger, tracker: tracker}
}

// SetRecorder attaches an operational metrics recorder. Call during wiring,
// before the handler sees traffic.
func (h *Handler) SetRecorder(rec Recorder) {
	h.recorder = rec
}

// WriteError writes the envelope for a status-classified failure and
// records it once.
func (h *Handler) WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeClassified(w, r, status, FromStatus(status), message, 0)
}

// WriteRetryError is WriteError plus a Retry-After header.
func (h *Handler) WriteRetryError(w http.ResponseWriter, r *http.Request, status int, message string, retryAfter time.Duration) {
	h.writeClassified(w, r, status, FromStatus(status), message, retryAfter)
}

// WriteValidationError writes a 400 envelope for malformed input.
func (h *Handler) WriteValidationError(w http.ResponseWriter, r *http.Request, message string) {
	h.WriteError(w, r, http.StatusBadRequest, message)
}

// WriteInternalError writes a 500 envelope. The message is a stable generic
// string; internal detail goes to the log only.
func (h *Handler) WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	h.WriteError(w, r, http.StatusInternalServerError, message)
}

// WritePanic writes a 500 envelope for an unexpected failure, classified by
// the runtime type name of the panic value.
func (h *Handler) WritePanic(w http.ResponseWriter, r *http.Request, v interface{}) {
	classification := Classification(fmt.Sprintf("%T", v))
	if err, ok := v.(error); ok {
		h.logger.Error("unexpected failure",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
		)
	}
	h.writeClassified(w, r, http.StatusInternalServerError, classification,
		"An unexpected error occurred", 0)
}

// RecordFailure records a failed operation whose response body shape is
// fixed by contract (e.g. degraded health documents) and so bypasses the
// envelope writer. It still flows through the same aggregation hook.
func (h *Handler) RecordFailure(r *http.Request, status int, message string) {
	if h.recorder != nil {
		h.recorder.RecordClassifiedError(string(FromStatus(status)))
	}
	h.tracker.RecordError(string(FromStatus(status)), tracking.ErrorDetail{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Path:      r.URL.Path,
		Method:    r.Method,
	})
}

func (h *Handler) writeClassified(w http.ResponseWriter, r *http.Request, status int, classification Classification, message string, retryAfter time.Duration) {
	requestID := r.Header.Get("X-Request-ID")

	h.logger.Warn("failure response",
		zap.Int("status", status),
		zap.String("classification", string(classification)),
		zap.String("message", message),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("request_id", requestID),
	)

	if h.recorder != nil {
		h.recorder.RecordClassifiedError(string(classification))
	}
	h.tracker.RecordError(string(classification), tracking.ErrorDetail{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Path:      r.URL.Path,
		Method:    r.Method,
	})

	env := Envelope{
		Status:         "error",
		Classification: classification,
		Message:        message,
		Timestamp:      time.Now().UTC(),
		Path:           r.URL.Path,
		Method:         r.Method,
		RequestID:      requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
