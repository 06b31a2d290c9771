package utils

import (
	"testing"
	"time"
)

func TestWindowHours(t *testing.T) {
	cases := []struct {
		window   string
		fallback int
		want     int
	}{
		{"24h", 24, 24},
		{"7d", 24, 168},
		{"90m", 24, 1},
		{"", 24, 24},
		{"soon", 12, 12},
		{"-3h", 24, 24},
	}
	for _, tc := range cases {
		if got := WindowHours(tc.window, tc.fallback); got != tc.want {
			t.Errorf("WindowHours(%q, %d) = %d, want %d", tc.window, tc.fallback, got, tc.want)
		}
	}
}

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	if got := DurationMinutes(start, end); got != 90 {
		t.Fatalf("forward: %v", got)
	}
	if got := DurationMinutes(end, start); got != 90 {
		t.Fatalf("reversed arguments should not go negative: %v", got)
	}
}
