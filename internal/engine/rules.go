package engine

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// Band is one threshold band of a metric family. A value matches the band
// when it exceeds Min; probability is min(Cap, Base+Slope*(value-Pivot)),
// clamped to [0,100] at alert construction.
type Band struct {
	Min           float64  `yaml:"min"`
	Base          float64  `yaml:"base"`
	Slope         float64  `yaml:"slope"`
	Pivot         float64  `yaml:"pivot"`
	Cap           float64  `yaml:"cap"`
	EstimatedTime string   `yaml:"estimated_time"`
	Issue         string   `yaml:"issue"`
	Actions       []string `yaml:"actions"`
}

func (b Band) probability(value float64) float64 {
	p := b.Base + b.Slope*(value-b.Pivot)
	if b.Cap > 0 && p > b.Cap {
		p = b.Cap
	}
	return p
}

// FamilyRule holds the ordered bands for one metric family. Bands are
// evaluated highest threshold first; the first match wins, so each family
// contributes at most one alert per endpoint.
type FamilyRule struct {
	Metric string `yaml:"metric"`
	Bands  []Band `yaml:"bands"`
}

// StatusRule maps an endpoint status (optionally gated on latency) to a
// fixed-probability availability alert.
type StatusRule struct {
	Statuses      []models.EndpointStatus `yaml:"statuses"`
	LatencyOverMS float64                 `yaml:"latency_over_ms"`
	Probability   float64                 `yaml:"probability"`
	EstimatedTime string                  `yaml:"estimated_time"`
	Issue         string                  `yaml:"issue"`
	Actions       []string                `yaml:"actions"`
}

// RuleTable is the full declarative rule pack evaluated by the interpreter.
type RuleTable struct {
	Families     []FamilyRule `yaml:"families"`
	Availability []StatusRule `yaml:"availability"`
}

// DefaultRuleTable returns the built-in thresholds.
func DefaultRuleTable() *RuleTable {
	return &RuleTable{
		Families: []FamilyRule{
			{
				Metric: "cpu_usage",
				Bands: []Band{
					{Min: 90, Base: 70, Slope: 2, Pivot: 80, Cap: 95, EstimatedTime: "2-4h",
						Issue: "High CPU usage (%.1f%%) may cause service degradation",
						Actions: []string{
							"Check running processes",
							"Consider application optimization",
							"Monitor the trend over the next hours",
						}},
					{Min: 80, Base: 70, Slope: 2, Pivot: 80, Cap: 95, EstimatedTime: "6-12h",
						Issue: "High CPU usage (%.1f%%) may cause service degradation",
						Actions: []string{
							"Check running processes",
							"Consider application optimization",
							"Monitor the trend over the next hours",
						}},
					{Min: 70, Base: 60, Slope: 1, Pivot: 70, EstimatedTime: "12-24h",
						Issue: "Rising CPU usage trend (%.1f%%)",
						Actions: []string{
							"Monitor critical applications",
							"Prepare an optimization plan",
						}},
				},
			},
			{
				Metric: "memory_usage",
				Bands: []Band{
					{Min: 95, Base: 75, Slope: 2, Pivot: 85, Cap: 90, EstimatedTime: "1-3h",
						Issue: "Imminent memory exhaustion (%.1f%%)",
						Actions: []string{
							"Check for memory leaks",
							"Restart non-critical services",
							"Consider adding RAM",
						}},
					{Min: 85, Base: 75, Slope: 2, Pivot: 85, Cap: 90, EstimatedTime: "4-8h",
						Issue: "Imminent memory exhaustion (%.1f%%)",
						Actions: []string{
							"Check for memory leaks",
							"Restart non-critical services",
							"Consider adding RAM",
						}},
					{Min: 75, Base: 65, Slope: 1, Pivot: 75, EstimatedTime: "8-16h",
						Issue: "Growing memory usage (%.1f%%)",
						Actions: []string{
							"Monitor memory-heavy applications",
							"Prepare a cleanup strategy",
						}},
				},
			},
			{
				Metric: "response_time",
				Bands: []Band{
					{Min: 5000, Base: 80, Slope: 0.001, Pivot: 5000, Cap: 95, EstimatedTime: "1-2h",
						Issue: "Severe latency (%.0fms) indicates network failure ahead",
						Actions: []string{
							"Check network connectivity",
							"Analyze network traffic",
							"Check server capacity",
						}},
					{Min: 2000, Base: 70, Slope: 0.01, Pivot: 2000, Cap: 85, EstimatedTime: "2-6h",
						Issue: "High latency (%.0fms) indicates possible network problems",
						Actions: []string{
							"Check network connectivity",
							"Analyze network traffic",
							"Check server capacity",
						}},
					{Min: 1000, Base: 60, Slope: 0.02, Pivot: 1000, EstimatedTime: "6-12h",
						Issue: "Degrading network performance (%.0fms)",
						Actions: []string{
							"Monitor latency continuously",
							"Check link quality",
						}},
				},
			},
		},
		Availability: []StatusRule{
			{Statuses: []models.EndpointStatus{models.StatusOffline}, Probability: 95, EstimatedTime: "Immediate",
				Issue: "Endpoint offline - service unavailable",
				Actions: []string{
					"Check endpoint connectivity",
					"Verify power and network links",
					"Notify the operations team",
				}},
			{Statuses: []models.EndpointStatus{models.StatusDisabled}, Probability: 80, EstimatedTime: "Until reactivation",
				Issue: "Endpoint disabled - monitoring suspended",
				Actions: []string{
					"Confirm the endpoint was disabled intentionally",
					"Re-enable monitoring when maintenance ends",
				}},
			{Statuses: []models.EndpointStatus{models.StatusCritical}, Probability: 90, EstimatedTime: "30min-2h",
				Issue: "Critical status - imminent failure detected",
				Actions: []string{
					"Immediate action required",
					"Activate emergency procedures",
					"Notify the support team",
				}},
			{Statuses: []models.EndpointStatus{models.StatusWarning, models.StatusDegraded}, Probability: 75, EstimatedTime: "2-6h",
				Issue: "Degraded status may lead to an outage",
				Actions: []string{
					"Investigate the cause of degradation",
					"Prepare a contingency plan",
					"Monitor dependent services",
				}},
			{Statuses: []models.EndpointStatus{models.StatusOnline}, LatencyOverMS: 10000, Probability: 85, EstimatedTime: "30min-2h",
				Issue: "Endpoint responding but extremely slow (%.0fms)",
				Actions: []string{
					"Check for saturated links",
					"Inspect the endpoint's load",
				}},
		},
	}
}

// LoadRuleTable reads a rule-pack file that overrides the built-in table.
// An empty path or a missing file yields the defaults.
func LoadRuleTable(path string) (*RuleTable, error) {
	if path == "" {
		return DefaultRuleTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRuleTable(), nil
		}
		return nil, err
	}
	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}
	defaults := DefaultRuleTable()
	if len(table.Families) == 0 {
		table.Families = defaults.Families
	}
	if len(table.Availability) == 0 {
		table.Availability = defaults.Availability
	}
	table.normalize()
	return &table, nil
}

// normalize keeps bands ordered highest threshold first so the interpreter
// can rely on first-match-wins.
func (t *RuleTable) normalize() {
	for i := range t.Families {
		bands := t.Families[i].Bands
		sort.SliceStable(bands, func(a, b int) bool { return bands[a].Min > bands[b].Min })
	}
}

// Evaluate applies every family rule plus the availability rules to one
// canonical record. Families are independent: an endpoint can collect one
// alert per family in a single pass.
func (t *RuleTable) Evaluate(rec models.CanonicalEndpointMetric, cfg models.PredictiveConfig) []models.PredictiveAlert {
	alerts := make([]models.PredictiveAlert, 0, len(t.Families)+1)

	for _, family := range t.Families {
		value := familyValue(rec, family.Metric)
		if value == nil {
			continue
		}
		for _, band := range family.Bands {
			if *value <= band.Min {
				continue
			}
			alerts = append(alerts, models.NewPredictiveAlert(
				rec.EndpointName,
				family.Metric,
				fmt.Sprintf(band.Issue, *value),
				band.probability(*value),
				band.EstimatedTime,
				band.Actions,
				cfg.ConfidenceThreshold,
			))
			break
		}
	}

	if alert, ok := t.evaluateAvailability(rec, cfg); ok {
		alerts = append(alerts, alert)
	}
	return alerts
}

func (t *RuleTable) evaluateAvailability(rec models.CanonicalEndpointMetric, cfg models.PredictiveConfig) (models.PredictiveAlert, bool) {
	for _, rule := range t.Availability {
		if !statusMatches(rule.Statuses, rec.Status) {
			continue
		}
		issue := rule.Issue
		if rule.LatencyOverMS > 0 {
			if rec.ResponseTimeMS == nil || *rec.ResponseTimeMS <= rule.LatencyOverMS {
				continue
			}
			issue = fmt.Sprintf(rule.Issue, *rec.ResponseTimeMS)
		}
		return models.NewPredictiveAlert(
			rec.EndpointName,
			"availability",
			issue,
			rule.Probability,
			rule.EstimatedTime,
			rule.Actions,
			cfg.ConfidenceThreshold,
		), true
	}
	return models.PredictiveAlert{}, false
}

func statusMatches(statuses []models.EndpointStatus, status models.EndpointStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func familyValue(rec models.CanonicalEndpointMetric, metric string) *float64 {
	switch metric {
	case "cpu_usage":
		return rec.CPUUsage
	case "memory_usage":
		return rec.MemoryUsage
	case "response_time":
		return rec.ResponseTimeMS
	default:
		return nil
	}
}
