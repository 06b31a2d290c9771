package engine

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

func alertRecords(endpoint string, n int) []models.AlertRecord {
	records := make([]models.AlertRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.AlertRecord{ID: i, Endpoint: endpoint, Title: "High CPU"})
	}
	return records
}

func TestDetectRequiresThreeRepeats(t *testing.T) {
	d := NewPatternDetector(slog.Default(), 3)
	cfg := models.DefaultPredictiveConfig()

	if alerts := d.Detect(alertRecords("web-01", 2), cfg); len(alerts) != 0 {
		t.Fatalf("two records should not trigger a pattern: %+v", alerts)
	}

	alerts := d.Detect(alertRecords("web-01", 3), cfg)
	if len(alerts) != 1 {
		t.Fatalf("expected one pattern alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.Metric != "alert_frequency" || alert.Probability != 80 || alert.EstimatedTime != "1-4h" {
		t.Fatalf("unexpected pattern alert: %+v", alert)
	}
	if !strings.Contains(alert.PredictedIssue, "3 alerts") {
		t.Fatalf("count missing from issue: %q", alert.PredictedIssue)
	}
}

func TestDetectGroupsPerEndpointDeterministically(t *testing.T) {
	d := NewPatternDetector(slog.Default(), 3)
	cfg := models.DefaultPredictiveConfig()

	records := append(alertRecords("zeta", 4), alertRecords("alpha", 3)...)
	records = append(records, alertRecords("beta", 1)...)

	alerts := d.Detect(records, cfg)
	if len(alerts) != 2 {
		t.Fatalf("expected two endpoints over the floor, got %d", len(alerts))
	}
	if alerts[0].Endpoint != "alpha" || alerts[1].Endpoint != "zeta" {
		t.Fatalf("output should be ordered by endpoint name: %+v", alerts)
	}
}

func TestDetectMapsEmptyEndpointToUnknown(t *testing.T) {
	d := NewPatternDetector(slog.Default(), 3)
	alerts := d.Detect(alertRecords("", 3), models.DefaultPredictiveConfig())
	if len(alerts) != 1 || alerts[0].Endpoint != "Unknown" {
		t.Fatalf("unlabelled records should group under Unknown: %+v", alerts)
	}
}

func TestAggregateAlertsBands(t *testing.T) {
	cfg := models.DefaultPredictiveConfig()

	critical := AggregateAlerts(models.AggregateCounts{Total: 10, Online: 4, Offline: 6}, cfg)
	if len(critical) != 2 {
		t.Fatalf("40%% uptime should raise availability and network alerts: %+v", critical)
	}
	if critical[0].Probability != 90 || critical[0].EstimatedTime != "Immediate" {
		t.Fatalf("critical availability alert: %+v", critical[0])
	}
	if critical[1].Metric != "network_health" || critical[1].Probability != 85 {
		t.Fatalf("network share alert: %+v", critical[1])
	}

	degraded := AggregateAlerts(models.AggregateCounts{Total: 10, Online: 7, Offline: 3}, cfg)
	if len(degraded) != 1 || degraded[0].Probability != 75 || degraded[0].EstimatedTime != "2-4h" {
		t.Fatalf("70%% uptime should raise the degraded alert only: %+v", degraded)
	}

	if alerts := AggregateAlerts(models.AggregateCounts{}, cfg); alerts != nil {
		t.Fatalf("empty fleet must not alert: %+v", alerts)
	}

	healthy := AggregateAlerts(models.AggregateCounts{Total: 10, Online: 10}, cfg)
	if len(healthy) != 0 {
		t.Fatalf("healthy fleet must not alert: %+v", healthy)
	}
}
