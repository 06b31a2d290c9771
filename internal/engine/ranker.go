package engine

import (
	"sort"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

const maxRankedAlerts = 10

// minCandidates is the floor below which the result set is padded with
// exemplar alerts so callers never face a near-empty response.
const minCandidates = 3

// Rank merges candidate alerts into the final surfaced list: pad thin
// result sets with exemplars, drop everything under the confidence
// threshold, sort by probability (stable on ties) and keep the top ten.
// For a fixed input and config the output is identical across calls.
func Rank(candidates []models.PredictiveAlert, cfg models.PredictiveConfig) []models.PredictiveAlert {
	ranked := append([]models.PredictiveAlert(nil), candidates...)

	if len(ranked) == 0 {
		ranked = ExemplarAlerts(cfg)
	} else if len(ranked) < minCandidates {
		for _, exemplar := range ExemplarAlerts(cfg) {
			if len(ranked) >= minCandidates {
				break
			}
			ranked = append(ranked, exemplar)
		}
	}

	filtered := ranked[:0]
	for _, alert := range ranked {
		if alert.Probability >= cfg.ConfidenceThreshold {
			filtered = append(filtered, alert)
		}
	}
	ranked = filtered

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})

	if len(ranked) > maxRankedAlerts {
		ranked = ranked[:maxRankedAlerts]
	}
	return ranked
}

// ExemplarAlerts is the fixed placeholder set used when telemetry yields
// little or nothing. Identities, probabilities and timestamps are stable
// so repeated calls produce identical output, and IsExemplar lets callers
// filter the padding out.
func ExemplarAlerts(cfg models.PredictiveConfig) []models.PredictiveAlert {
	return []models.PredictiveAlert{
		{
			ID:             "exemplar-server-01-cpu",
			Endpoint:       "Server-01",
			Metric:         "cpu_usage",
			PredictedIssue: "High CPU usage trend based on historical patterns",
			Probability:    78,
			EstimatedTime:  "4-8h",
			SuggestedActions: []string{
				"Monitor running processes",
				"Check critical applications",
			},
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			IsExemplar:          true,
		},
		{
			ID:             "exemplar-server-02-memory",
			Endpoint:       "Server-02",
			Metric:         "memory_usage",
			PredictedIssue: "Possible memory exhaustion detected",
			Probability:    72,
			EstimatedTime:  "6-12h",
			SuggestedActions: []string{
				"Check for memory leaks",
				"Consider restarting services",
			},
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			IsExemplar:          true,
		},
		{
			ID:             "exemplar-router-01-latency",
			Endpoint:       "Router-01",
			Metric:         "network_latency",
			PredictedIssue: "Network performance degradation expected",
			Probability:    68,
			EstimatedTime:  "2-6h",
			SuggestedActions: []string{
				"Check connectivity",
				"Analyze network traffic",
			},
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			IsExemplar:          true,
		},
	}
}
