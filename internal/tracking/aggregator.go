// Package tracking keeps the process-wide view of request volume and
// failure composition. It records failures of other components and must not
// fail itself.
package tracking

import (
	"sync"
	"time"
)

// ErrorDetail is the snapshot kept for the most recent error. It is
// replaced as one unit on every new error.
type ErrorDetail struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
}

// Snapshot is a point-in-time consistent read of all counters.
type Snapshot struct {
	TotalRequests int64            `json:"total_requests"`
	TotalErrors   int64            `json:"total_errors"`
	ErrorTypes    map[string]int64 `json:"error_types"`
	LastError     *ErrorDetail     `json:"last_error"`
	ErrorRate     float64          `json:"error_rate_percent"`
}

// Aggregator counts requests and classified errors. All mutations go
// through one mutex, so concurrent increments are never lost and snapshots
// never observe a torn write.
type Aggregator struct {
	mu            sync.Mutex
	totalRequests int64
	totalErrors   int64
	errorTypes    map[string]int64
	lastError     *ErrorDetail
}

// New returns a zeroed aggregator.
func New() *Aggregator {
	return &Aggregator{errorTypes: make(map[string]int64)}
}

// RecordRequest increments the request counter. Called exactly once per
// inbound operation regardless of outcome.
func (a *Aggregator) RecordRequest() {
	a.mu.Lock()
	a.totalRequests++
	a.mu.Unlock()
}

// RecordError increments the error counters for the classification and
// overwrites the last-error snapshot. Called at most once per failed
// operation.
func (a *Aggregator) RecordError(classification string, detail ErrorDetail) {
	a.mu.Lock()
	a.totalErrors++
	a.errorTypes[classification]++
	d := detail
	a.lastError = &d
	a.mu.Unlock()
}

// Snapshot returns a consistent copy of all counters plus the derived error
// rate in percent.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	types := make(map[string]int64, len(a.errorTypes))
	for classification, count := range a.errorTypes {
		types[classification] = count
	}

	var last *ErrorDetail
	if a.lastError != nil {
		d := *a.lastError
		last = &d
	}

	requests := a.totalRequests
	if requests < 1 {
		requests = 1
	}

	return Snapshot{
		TotalRequests: a.totalRequests,
		TotalErrors:   a.totalErrors,
		ErrorTypes:    types,
		LastError:     last,
		ErrorRate:     float64(a.totalErrors) / float64(requests) * 100,
	}
}

// Reset atomically returns the aggregator to its zero state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.totalRequests = 0
	a.totalErrors = 0
	a.errorTypes = make(map[string]int64)
	a.lastError = nil
	a.mu.Unlock()
}
