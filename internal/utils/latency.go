package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent duration samples for
// percentile reporting. Oldest samples are evicted once the window fills.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	window  int
}

// NewLatencyTracker returns a tracker holding up to window samples.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = 512
	}
	return &LatencyTracker{window: window}
}

// Observe records one duration, evicting the oldest sample when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) == l.window {
		copy(l.samples, l.samples[1:])
		l.samples = l.samples[:l.window-1]
	}
	l.samples = append(l.samples, d)
}

// Percentile returns the duration at percentile p (0-100) over the current
// window, zero when empty. Out-of-range p clamps to the window extremes.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.samples)
	if n == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), l.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	return sorted[int(p/100*float64(n-1))]
}

// Count reports how many samples the window currently holds.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
