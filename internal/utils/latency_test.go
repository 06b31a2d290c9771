package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, d := range []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	} {
		tracker.Observe(d)
	}

	if tracker.Count() != 5 {
		t.Fatalf("count: got %d want 5", tracker.Count())
	}
	if p95 := tracker.Percentile(95); p95 < 40*time.Millisecond {
		t.Fatalf("p95 should sit near the top of the window, got %v", p95)
	}
	if lo := tracker.Percentile(0); lo != 10*time.Millisecond {
		t.Fatalf("p0 should be the minimum, got %v", lo)
	}
	if hi := tracker.Percentile(100); hi != 50*time.Millisecond {
		t.Fatalf("p100 should be the maximum, got %v", hi)
	}
}

func TestLatencyTrackerEmptyWindow(t *testing.T) {
	tracker := NewLatencyTracker(4)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("empty tracker should report zero, got %v", got)
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("window size: got %d want 3", tracker.Count())
	}
	if lo := tracker.Percentile(0); lo != 8*time.Millisecond {
		t.Fatalf("oldest samples should have been evicted, min is %v", lo)
	}
}
