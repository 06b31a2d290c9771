package utils

import (
	"strconv"
	"strings"
	"time"
)

// WindowHours converts a window expression such as "24h", "90m" or "7d"
// into whole hours. Unparseable input yields the fallback.
func WindowHours(window string, fallback int) int {
	window = strings.TrimSpace(strings.ToLower(window))
	if window == "" {
		return fallback
	}
	if strings.HasSuffix(window, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(window, "d")); err == nil && n > 0 {
			return n * 24
		}
		return fallback
	}
	if d, err := time.ParseDuration(window); err == nil && d > 0 {
		hours := int(d.Hours())
		if hours < 1 {
			return 1
		}
		return hours
	}
	return fallback
}

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}
