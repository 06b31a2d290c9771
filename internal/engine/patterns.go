package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// PatternDetector scans historical alert records for repetition per
// endpoint. It operates on alert history, not live metrics, and its output
// is additive to the threshold rules.
type PatternDetector struct {
	logger     *slog.Logger
	minRepeats int
}

// NewPatternDetector constructs a detector; endpoints with at least
// minRepeats grouped records yield one synthetic alert_frequency alert.
func NewPatternDetector(logger *slog.Logger, minRepeats int) *PatternDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if minRepeats <= 0 {
		minRepeats = 3
	}
	return &PatternDetector{logger: logger, minRepeats: minRepeats}
}

// Detect groups records by endpoint and emits one pattern alert per
// endpoint crossing the repetition floor. Output order is deterministic.
func (d *PatternDetector) Detect(records []models.AlertRecord, cfg models.PredictiveConfig) []models.PredictiveAlert {
	if len(records) == 0 {
		return nil
	}

	grouped := make(map[string]int)
	for _, rec := range records {
		endpoint := rec.Endpoint
		if endpoint == "" {
			endpoint = "Unknown"
		}
		grouped[endpoint]++
	}

	endpoints := make([]string, 0, len(grouped))
	for endpoint, count := range grouped {
		if count >= d.minRepeats {
			endpoints = append(endpoints, endpoint)
		}
	}
	sort.Strings(endpoints)

	alerts := make([]models.PredictiveAlert, 0, len(endpoints))
	for _, endpoint := range endpoints {
		alerts = append(alerts, models.NewPredictiveAlert(
			endpoint,
			"alert_frequency",
			fmt.Sprintf("Repeated alert pattern detected (%d alerts)", grouped[endpoint]),
			80,
			"1-4h",
			[]string{
				"Investigate the alerts' root cause",
				"Check for a systemic problem",
				"Consider preventive maintenance",
			},
			cfg.ConfidenceThreshold,
		))
	}

	if len(alerts) > 0 {
		d.logger.Debug("alert frequency patterns found", slog.Int("endpoints", len(alerts)))
	}
	return alerts
}
