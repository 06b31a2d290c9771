package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func record(mutate func(*models.CanonicalEndpointMetric)) models.CanonicalEndpointMetric {
	rec := models.CanonicalEndpointMetric{
		EndpointID:   "1",
		EndpointName: "web-01",
		Status:       models.StatusOnline,
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestCPUBandProbabilities(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	cases := []struct {
		value       float64
		probability float64
		estimated   string
	}{
		{95, 95, "2-4h"},   // 70+2*(95-80)=100, capped at 95
		{85, 80, "6-12h"},  // 70+2*(85-80)
		{72, 62, "12-24h"}, // 60+1*(72-70)
	}
	for _, tc := range cases {
		alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
			r.CPUUsage = floatPtr(tc.value)
		}), cfg)
		if len(alerts) != 1 {
			t.Fatalf("cpu=%v: expected one alert, got %d", tc.value, len(alerts))
		}
		if alerts[0].Probability != tc.probability {
			t.Fatalf("cpu=%v: expected probability %v, got %v", tc.value, tc.probability, alerts[0].Probability)
		}
		if alerts[0].EstimatedTime != tc.estimated {
			t.Fatalf("cpu=%v: expected %q, got %q", tc.value, tc.estimated, alerts[0].EstimatedTime)
		}
		if alerts[0].Metric != "cpu_usage" {
			t.Fatalf("cpu=%v: wrong metric %q", tc.value, alerts[0].Metric)
		}
	}
}

func TestCPUBandBoundaryIsExclusive(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	// Exactly 90 belongs to the 80-90 band, not the >90 band.
	alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.CPUUsage = floatPtr(90)
	}), cfg)
	if len(alerts) != 1 || alerts[0].EstimatedTime != "6-12h" {
		t.Fatalf("value on the boundary matched the wrong band: %+v", alerts)
	}

	// Exactly 70 matches nothing.
	alerts = table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.CPUUsage = floatPtr(70)
	}), cfg)
	if len(alerts) != 0 {
		t.Fatalf("70%% CPU should not alert: %+v", alerts)
	}
}

func TestMemoryBands(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.MemoryUsage = floatPtr(97)
	}), cfg)
	if len(alerts) != 1 || alerts[0].Probability != 90 || alerts[0].EstimatedTime != "1-3h" {
		t.Fatalf("memory=97: %+v", alerts)
	}

	alerts = table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.MemoryUsage = floatPtr(90)
	}), cfg)
	if len(alerts) != 1 || alerts[0].Probability != 85 || alerts[0].EstimatedTime != "4-8h" {
		t.Fatalf("memory=90: %+v", alerts)
	}
}

func TestLatencyBands(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.ResponseTimeMS = floatPtr(2500)
	}), cfg)
	if len(alerts) != 1 || alerts[0].Probability != 75 || alerts[0].EstimatedTime != "2-6h" {
		t.Fatalf("latency=2500: %+v", alerts)
	}
	if !strings.Contains(alerts[0].PredictedIssue, "2500") {
		t.Fatalf("latency value missing from issue text: %q", alerts[0].PredictedIssue)
	}
}

func TestFamiliesAreIndependent(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.CPUUsage = floatPtr(85)
		r.MemoryUsage = floatPtr(90)
	}), cfg)
	if len(alerts) != 2 {
		t.Fatalf("expected one alert per family, got %d: %+v", len(alerts), alerts)
	}
}

func TestAvailabilityRules(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	offline := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.Status = models.StatusOffline
	}), cfg)
	if len(offline) != 1 || offline[0].Probability != 95 || offline[0].EstimatedTime != "Immediate" {
		t.Fatalf("offline: %+v", offline)
	}
	if offline[0].Metric != "availability" {
		t.Fatalf("offline metric: %q", offline[0].Metric)
	}

	disabled := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.Status = models.StatusDisabled
	}), cfg)
	if len(disabled) != 1 || disabled[0].Probability != 80 || disabled[0].EstimatedTime != "Until reactivation" {
		t.Fatalf("disabled: %+v", disabled)
	}

	degraded := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.Status = models.StatusDegraded
	}), cfg)
	if len(degraded) != 1 || degraded[0].Probability != 75 {
		t.Fatalf("degraded: %+v", degraded)
	}
}

func TestOnlineSlowEndpointGetsAvailabilityAndLatencyAlerts(t *testing.T) {
	table := DefaultRuleTable()
	cfg := models.DefaultPredictiveConfig()

	alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.ResponseTimeMS = floatPtr(12000)
	}), cfg)
	if len(alerts) != 2 {
		t.Fatalf("expected latency family + availability alerts, got %+v", alerts)
	}
	var sawAvailability bool
	for _, alert := range alerts {
		if alert.Metric == "availability" {
			sawAvailability = true
			if alert.Probability != 85 {
				t.Fatalf("slow-online availability probability: %v", alert.Probability)
			}
		}
	}
	if !sawAvailability {
		t.Fatalf("availability gate did not fire: %+v", alerts)
	}

	// Below the 10s gate only the latency family fires.
	alerts = table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.ResponseTimeMS = floatPtr(9000)
	}), cfg)
	if len(alerts) != 1 || alerts[0].Metric != "response_time" {
		t.Fatalf("gate fired too early: %+v", alerts)
	}
}

func TestLoadRuleTableFallsBackToDefaults(t *testing.T) {
	table, err := LoadRuleTable("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if len(table.Families) != 3 {
		t.Fatalf("expected built-in families, got %d", len(table.Families))
	}

	table, err = LoadRuleTable(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if len(table.Availability) == 0 {
		t.Fatal("missing file should yield defaults")
	}
}

func TestLoadRuleTableMergesPartialPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yaml")
	pack := `
families:
  - metric: cpu_usage
    bands:
      - min: 50
        base: 40
        slope: 1
        pivot: 50
        estimated_time: "1h"
        issue: "CPU above half (%.1f%%)"
        actions: ["look at it"]
`
	if err := os.WriteFile(path, []byte(pack), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	table, err := LoadRuleTable(path)
	if err != nil {
		t.Fatalf("load pack: %v", err)
	}
	if len(table.Families) != 1 {
		t.Fatalf("pack families should replace defaults, got %d", len(table.Families))
	}
	if len(table.Availability) == 0 {
		t.Fatal("omitted availability section should come from defaults")
	}

	alerts := table.Evaluate(record(func(r *models.CanonicalEndpointMetric) {
		r.CPUUsage = floatPtr(60)
	}), models.DefaultPredictiveConfig())
	if len(alerts) != 1 || alerts[0].Probability != 50 {
		t.Fatalf("custom band not applied: %+v", alerts)
	}
}
