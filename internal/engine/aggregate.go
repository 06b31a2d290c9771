package engine

import (
	"fmt"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// AggregateAlerts is the rule path used when no per-endpoint detail is
// available but fleet totals are. It fires on the overall availability
// ratio and, additively, on the offline share of the fleet.
func AggregateAlerts(counts models.AggregateCounts, cfg models.PredictiveConfig) []models.PredictiveAlert {
	if counts.Total <= 0 {
		return nil
	}

	alerts := make([]models.PredictiveAlert, 0, 2)
	uptime := counts.UptimeRatio()

	switch {
	case uptime < 50:
		alerts = append(alerts, models.NewPredictiveAlert(
			"Infrastructure",
			"availability",
			fmt.Sprintf("Fleet availability critical (%.1f%% online)", uptime),
			90,
			"Immediate",
			[]string{
				"Check for a shared network or power failure",
				"Escalate to the on-call engineer",
				"Verify monitoring backend connectivity",
			},
			cfg.ConfidenceThreshold,
		))
	case uptime < 80:
		alerts = append(alerts, models.NewPredictiveAlert(
			"Infrastructure",
			"availability",
			fmt.Sprintf("Fleet availability degraded (%.1f%% online)", uptime),
			75,
			"2-4h",
			[]string{
				"Review offline endpoints for a common cause",
				"Check recent configuration changes",
			},
			cfg.ConfidenceThreshold,
		))
	}

	if float64(counts.Offline) > float64(counts.Total)*0.3 {
		alerts = append(alerts, models.NewPredictiveAlert(
			"Network",
			"network_health",
			fmt.Sprintf("%d of %d endpoints offline suggests a network-level fault", counts.Offline, counts.Total),
			85,
			"1-2h",
			[]string{
				"Check core switches and uplinks",
				"Validate DNS and routing",
			},
			cfg.ConfidenceThreshold,
		))
	}

	return alerts
}
