package telemetry

import (
	"log/slog"
	"testing"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

func TestResolvePrefersEndpointsOverMonitors(t *testing.T) {
	s := Snapshot{
		Endpoints: []EndpointPayload{{ID: 1}},
		Monitors:  []MonitorPayload{{ID: 2}},
	}
	if got := Resolve(s); got != ShapeEndpoints {
		t.Fatalf("expected endpoints shape, got %s", got)
	}
	if got := Resolve(Snapshot{Monitors: []MonitorPayload{{ID: 2}}}); got != ShapeMonitors {
		t.Fatalf("expected monitors shape, got %s", got)
	}
	if got := Resolve(Snapshot{}); got != ShapeAggregateOnly {
		t.Fatalf("expected aggregate shape, got %s", got)
	}
}

func TestNormalizeEndpointsReadsApplicationMetrics(t *testing.T) {
	n := NewNormalizer(slog.Default())
	ts := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	records := n.Normalize(Snapshot{
		Timestamp: ts,
		Endpoints: []EndpointPayload{
			{ID: 1, Name: "web-01", Status: "online", Data: map[string]any{
				"cpu_usage":     85.0,
				"memory_usage":  "62.5%",
				"response_time": 340,
			}},
			{ID: 2, Name: "", Status: "nonsense", Data: map[string]any{}},
		},
	})

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.CPUUsage == nil || *first.CPUUsage != 85 {
		t.Fatalf("cpu not parsed: %+v", first.CPUUsage)
	}
	if first.MemoryUsage == nil || *first.MemoryUsage != 62.5 {
		t.Fatalf("percent string not parsed: %+v", first.MemoryUsage)
	}
	if first.ResponseTimeMS == nil || *first.ResponseTimeMS != 340 {
		t.Fatalf("int response time not parsed: %+v", first.ResponseTimeMS)
	}
	if first.Status != models.StatusOnline || !first.LastUpdated.Equal(ts) {
		t.Fatalf("unexpected record: %+v", first)
	}

	second := records[1]
	if second.EndpointName != "Endpoint 2" {
		t.Fatalf("missing name not synthesised: %q", second.EndpointName)
	}
	if second.Status != models.StatusUnknown {
		t.Fatalf("unrecognised status should stay unknown, got %s", second.Status)
	}
	if second.CPUUsage != nil || second.MemoryUsage != nil {
		t.Fatalf("absent metrics should stay nil: %+v", second)
	}
}

func TestNormalizeMonitorsDerivesMemoryUsage(t *testing.T) {
	n := NewNormalizer(slog.Default())

	records := n.Normalize(Snapshot{
		Monitors: []MonitorPayload{
			{ID: 10, Name: "core-switch", Status: 1, Metrics: map[string]any{
				"hrProcessorLoad": 72.0,
				"memTotalReal":    8192.0,
				"memAvailReal":    1024.0,
			}},
		},
	})

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.MemoryUsage == nil || *rec.MemoryUsage != 87.5 {
		t.Fatalf("expected 87.5%% memory usage, got %+v", rec.MemoryUsage)
	}
	if rec.CPUUsage == nil || *rec.CPUUsage != 72 {
		t.Fatalf("processor load not mapped: %+v", rec.CPUUsage)
	}
	if rec.Status != models.StatusOnline {
		t.Fatalf("truthy status should map to online, got %s", rec.Status)
	}
}

func TestNormalizeMonitorsZeroTotalGuard(t *testing.T) {
	n := NewNormalizer(slog.Default())
	records := n.Normalize(Snapshot{
		Monitors: []MonitorPayload{
			{ID: 1, Metrics: map[string]any{"memTotalReal": 0.0, "memAvailReal": 512.0}},
		},
	})
	if records[0].MemoryUsage != nil {
		t.Fatalf("zero total must not divide: %+v", records[0].MemoryUsage)
	}
}

func TestNormalizeMonitorsStatusFlags(t *testing.T) {
	n := NewNormalizer(slog.Default())
	inactive := false

	records := n.Normalize(Snapshot{
		Monitors: []MonitorPayload{
			{ID: 1, Status: 0},
			{ID: 2, Status: "up"},
			{ID: 3, Status: 1, Active: &inactive},
		},
	})

	if records[0].Status != models.StatusOffline {
		t.Fatalf("falsy status should be offline, got %s", records[0].Status)
	}
	if records[1].Status != models.StatusOnline {
		t.Fatalf("'up' should be online, got %s", records[1].Status)
	}
	if records[2].Status != models.StatusDisabled {
		t.Fatalf("active=false must win over status, got %s", records[2].Status)
	}
}

func TestNormalizeMonitorsPingFallback(t *testing.T) {
	n := NewNormalizer(slog.Default())
	records := n.Normalize(Snapshot{
		Monitors: []MonitorPayload{
			{ID: 1, Status: 1, Metrics: map[string]any{"rtt": 150.0}},
		},
	})
	if records[0].ResponseTimeMS == nil || *records[0].ResponseTimeMS != 150 {
		t.Fatalf("rtt fallback not applied: %+v", records[0].ResponseTimeMS)
	}
}
