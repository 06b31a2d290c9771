package engine

// TrendVelocity returns the mean sample-to-sample delta of a series, used
// as a crude rate-of-change estimate. Fewer than two samples yield zero.
func TrendVelocity(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(values); i++ {
		sum += values[i] - values[i-1]
	}
	return sum / float64(len(values)-1)
}

// ProjectValue extrapolates a percentage metric linearly along the current
// velocity, clamped into [0,100].
func ProjectValue(current, velocity float64, hoursAhead int) float64 {
	projected := current + velocity*float64(hoursAhead)
	if projected < 0 {
		return 0
	}
	if projected > 100 {
		return 100
	}
	return projected
}
