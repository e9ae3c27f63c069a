// Package latency keeps a bounded buffer of recent request durations for
// the dashboard percentiles.
package latency

import (
	"sort"
	"sync"
	"time"
)

// Tracker stores recent duration samples and computes percentiles.
type Tracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
}

// NewTracker creates a tracker storing up to maxSize samples.
func NewTracker(maxSize int) *Tracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &Tracker{maxSize: maxSize}
}

// Observe records a new duration, dropping the oldest sample when full.
func (t *Tracker) Observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, d)
	if len(t.samples) > t.maxSize {
		copy(t.samples[0:], t.samples[1:])
		t.samples = t.samples[:t.maxSize]
	}
}

// Percentile returns the percentile (0-100) duration, zero if no samples.
func (t *Tracker) Percentile(p float64) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.samples) == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), t.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Average returns the mean of the stored samples, zero if none.
func (t *Tracker) Average() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range t.samples {
		total += s
	}
	return total / time.Duration(len(t.samples))
}

// Count returns the number of samples currently held.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
