package handlers

import (
	"sort"
	"sync"
	"time"
)

// latencyWindow keeps the most recent max samples.
type latencyWindow struct {
	mu      sync.RWMutex
	samples []time.Duration
	max     int
}

func newLatencyWindow(max int) *latencyWindow {
	if max <= 0 {
		max = 10000
	}
	return &latencyWindow{samples: make([]time.Duration, 0, max), max: max}
}

func (w *latencyWindow) record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, d)
	// edge case: maintain rolling window by removing oldest measurements
	if len(w.samples) > w.max {
		w.samples = w.samples[len(w.samples)-w.max:]
	}
}

// percentiles returns p50, p99 and p99.9 in milliseconds.
func (w *latencyWindow) percentiles() (p50, p99, p999 float64) {
	w.mu.RLock()
	sorted := make([]time.Duration, len(w.samples))
	copy(sorted, w.samples)
	w.mu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(q float64) float64 {
		i := int(float64(len(sorted)) * q)
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return float64(sorted[i].Nanoseconds()) / 1e6
	}
	return at(0.50), at(0.99), at(0.999)
}
