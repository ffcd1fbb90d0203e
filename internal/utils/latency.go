package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyWindow keeps the most recent remote call durations and reports percentiles.
type LatencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyWindow creates a window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 512
	}
	return &LatencyWindow{samples: make([]time.Duration, size)}
}

// Observe records a duration, overwriting the oldest sample once the window is full.
func (w *LatencyWindow) Observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Count returns the number of samples currently held.
func (w *LatencyWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count()
}

// Percentile returns the p-th percentile (0-100) or zero when empty.
func (w *LatencyWindow) Percentile(p float64) time.Duration {
	w.mu.Lock()
	n := w.count()
	sorted := append([]time.Duration(nil), w.samples[:n]...)
	w.mu.Unlock()

	if n == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	return sorted[int((p/100.0)*float64(n-1))]
}

func (w *LatencyWindow) count() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}
