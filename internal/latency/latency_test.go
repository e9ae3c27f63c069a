package latency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_PercentileAndAverage(t *testing.T) {
	tr := NewTracker(16)
	for i := 1; i <= 10; i++ {
		tr.Observe(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 10, tr.Count())
	assert.Equal(t, time.Millisecond, tr.Percentile(0))
	assert.Equal(t, 10*time.Millisecond, tr.Percentile(100))
	assert.Equal(t, 5*time.Millisecond, tr.Percentile(50))
	assert.Equal(t, 5500*time.Microsecond, tr.Average())
}

func TestTracker_BoundedBuffer(t *testing.T) {
	tr := NewTracker(4)
	for i := 1; i <= 10; i++ {
		tr.Observe(time.Duration(i) * time.Second)
	}

	assert.Equal(t, 4, tr.Count())
	// Oldest samples were dropped.
	assert.Equal(t, 7*time.Second, tr.Percentile(0))
	assert.Equal(t, 10*time.Second, tr.Percentile(100))
}

func TestTracker_Empty(t *testing.T) {
	tr := NewTracker(8)
	assert.Zero(t, tr.Percentile(95))
	assert.Zero(t, tr.Average())
	assert.Zero(t, tr.Count())
}
