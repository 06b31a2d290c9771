package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/cache"
	"github.com/infrawatchstack/infrawatch-insight/internal/engine"
	"github.com/infrawatchstack/infrawatch-insight/internal/models"
	"github.com/infrawatchstack/infrawatch-insight/internal/telemetry"
)

func endpointSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		Aggregate: models.AggregateCounts{Total: 2, Online: 2},
		Endpoints: []telemetry.EndpointPayload{
			{ID: 1, Name: "web-01", Status: "online", Data: map[string]any{"cpu_usage": 85.0}},
			{ID: 2, Name: "db-01", Status: "online", Data: map[string]any{"memory_usage": 90.0}},
		},
	}
}

func newPredictive(t *testing.T, live LiveDataProvider, llm Generator) *PredictiveService {
	t.Helper()
	analyzer := engine.NewAnalyzer(slog.Default(), nil)
	return NewPredictiveService(slog.Default(), analyzer, live, llm, nil, 0)
}

// memCache is an in-memory cache.Provider for exercising the analysis cache.
type memCache struct {
	store map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{store: map[string][]byte{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.store[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.store[key] = append([]byte(nil), value...)
	return nil
}

func (m *memCache) Close() error { return nil }

func TestAnalyzeMergesModelSummary(t *testing.T) {
	live := &fakeLive{snapshot: endpointSnapshot()}
	llm := &fakeGenerator{response: `{"summary":"Two hosts under pressure","confidence":80,"trends":{"cpu":"rising"},"recommendations":["Scale out the web tier"]}`}
	svc := newPredictive(t, live, llm)

	response, err := svc.Analyze(context.Background(), models.PredictiveRequest{Config: models.DefaultPredictiveConfig()})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if response.Summary != "Two hosts under pressure" {
		t.Fatalf("model summary not merged: %q", response.Summary)
	}
	if response.Trends["cpu"] != "rising" {
		t.Fatalf("trends not carried: %+v", response.Trends)
	}
	if len(response.Recommendations) == 0 || response.Recommendations[0] != "Scale out the web tier" {
		t.Fatalf("model recommendations should lead: %+v", response.Recommendations)
	}
	if len(response.Recommendations) > 5 {
		t.Fatalf("recommendations must be capped at 5: %+v", response.Recommendations)
	}

	// Overall confidence is the mean of the model figure and the average
	// alert probability.
	var sum float64
	for _, alert := range response.Alerts {
		sum += alert.Probability
	}
	want := (80 + sum/float64(len(response.Alerts))) / 2
	if response.Confidence != want {
		t.Fatalf("confidence: got %v want %v", response.Confidence, want)
	}
}

func TestAnalyzeSurvivesModelFailure(t *testing.T) {
	live := &fakeLive{snapshot: endpointSnapshot()}
	llm := &fakeGenerator{err: errors.New("model down")}
	svc := newPredictive(t, live, llm)

	response, err := svc.Analyze(context.Background(), models.PredictiveRequest{Config: models.DefaultPredictiveConfig()})
	if err != nil {
		t.Fatalf("model failure must not fail the pass: %v", err)
	}
	if len(response.Alerts) == 0 {
		t.Fatal("rule alerts should survive a model failure")
	}
	if !strings.Contains(response.Summary, "Rule analysis identified") {
		t.Fatalf("expected rules-only summary, got %q", response.Summary)
	}
}

func TestAnalyzeSurvivesOverviewFailure(t *testing.T) {
	live := &fakeLive{snapshotErr: errors.New("backend down")}
	llm := &fakeGenerator{response: `{"summary":"No telemetry available","confidence":40}`}
	svc := newPredictive(t, live, llm)

	response, err := svc.Analyze(context.Background(), models.PredictiveRequest{Config: models.DefaultPredictiveConfig()})
	if err != nil {
		t.Fatalf("overview failure must not fail the pass: %v", err)
	}
	for _, alert := range response.Alerts {
		if !alert.IsExemplar {
			t.Fatalf("without telemetry only exemplars should surface: %+v", alert)
		}
	}
	if response.Metadata["shape"] != "aggregate" {
		t.Fatalf("expected aggregate shape marker: %+v", response.Metadata)
	}
}

func TestAnalyzeDerivesInsightsFromAlerts(t *testing.T) {
	live := &fakeLive{snapshot: endpointSnapshot()}
	llm := &fakeGenerator{response: `{"summary":"ok","confidence":70}`}
	svc := newPredictive(t, live, llm)

	response, err := svc.Analyze(context.Background(), models.PredictiveRequest{Config: models.DefaultPredictiveConfig()})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(response.Alerts) == 0 {
		t.Fatal("expected rule alerts for the insight conversion")
	}
	if len(response.Insights) != len(response.Alerts) {
		t.Fatalf("one insight per alert: %d insights for %d alerts", len(response.Insights), len(response.Alerts))
	}
	for i, insight := range response.Insights {
		alert := response.Alerts[i]
		want := models.InsightInfo
		if alert.Probability >= 80 {
			want = models.InsightWarning
		}
		if insight.Type != want {
			t.Fatalf("insight %d: got %s for probability %v", i, insight.Type, alert.Probability)
		}
		if insight.Confidence != alert.Probability {
			t.Fatalf("insight confidence should mirror probability: %+v", insight)
		}
		if !strings.Contains(insight.Recommendation, alert.EstimatedTime) {
			t.Fatalf("timeframe missing from recommendation: %q", insight.Recommendation)
		}
	}
}

func TestAnalyzeCachesSuccessfulPasses(t *testing.T) {
	live := &fakeLive{snapshot: endpointSnapshot()}
	llm := &fakeGenerator{response: `{"summary":"ok","confidence":70}`}
	analyzer := engine.NewAnalyzer(slog.Default(), nil)
	svc := NewPredictiveService(slog.Default(), analyzer, live, llm, newMemCache(), time.Minute)

	req := models.PredictiveRequest{Config: models.DefaultPredictiveConfig()}
	first, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}

	if live.overviewCalls != 1 {
		t.Fatalf("second pass should be served from cache, got %d overview calls", live.overviewCalls)
	}
	if second.Summary != first.Summary || !second.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("cached response should match the original: %+v vs %+v", second, first)
	}

	// A different request shape misses the cache.
	if _, err := svc.Analyze(context.Background(), models.PredictiveRequest{Config: models.DefaultPredictiveConfig(), MaxAlerts: 1}); err != nil {
		t.Fatalf("third analyze: %v", err)
	}
	if live.overviewCalls != 2 {
		t.Fatalf("distinct request should bypass the cache, got %d overview calls", live.overviewCalls)
	}
}

func TestAnalyzeHonorsMaxAlerts(t *testing.T) {
	live := &fakeLive{snapshot: endpointSnapshot()}
	llm := &fakeGenerator{response: `{"summary":"ok","confidence":70}`}
	svc := newPredictive(t, live, llm)

	response, err := svc.Analyze(context.Background(), models.PredictiveRequest{
		Config:    models.DefaultPredictiveConfig(),
		MaxAlerts: 1,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(response.Alerts) != 1 {
		t.Fatalf("max alerts not applied: %d", len(response.Alerts))
	}
}

func TestCurrentAlertsUsesDefaults(t *testing.T) {
	live := &fakeLive{snapshot: endpointSnapshot()}
	llm := &fakeGenerator{response: `{"summary":"ok","confidence":70}`}
	svc := newPredictive(t, live, llm)

	alerts, err := svc.CurrentAlerts(context.Background())
	if err != nil {
		t.Fatalf("current alerts: %v", err)
	}
	if len(alerts) == 0 {
		t.Fatal("expected alerts from the default pass")
	}
	for _, alert := range alerts {
		if alert.ConfidenceThreshold != 70 {
			t.Fatalf("default threshold not applied: %+v", alert)
		}
	}
}

func TestMetricTrendsProjectsWindow(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	live := &fakeLive{metrics: []models.MetricSnapshot{
		{EndpointID: 1, Metrics: map[string]string{"cpu_usage": "60", "memory_usage": "70%", "disk_usage": "n/a"}, Timestamp: base},
		{EndpointID: 1, Metrics: map[string]string{"cpu_usage": "62", "memory_usage": "69%"}, Timestamp: base.Add(time.Hour)},
	}}
	svc := newPredictive(t, live, &fakeGenerator{})

	trends, err := svc.MetricTrends(context.Background(), "24h")
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("single-sample and unparseable metrics must be skipped: %+v", trends)
	}

	cpu := trends[0]
	if cpu.Metric != "cpu_usage" || cpu.Direction != "rising" {
		t.Fatalf("unexpected cpu trend: %+v", cpu)
	}
	if cpu.VelocityPerHr != 2 {
		t.Fatalf("hourly velocity: got %v want 2", cpu.VelocityPerHr)
	}
	if cpu.Projected != 100 {
		t.Fatalf("projection must clamp to 100, got %v", cpu.Projected)
	}

	mem := trends[1]
	if mem.Metric != "memory_usage" || mem.Direction != "falling" {
		t.Fatalf("unexpected memory trend: %+v", mem)
	}
	if mem.Projected != 69-24 {
		t.Fatalf("linear projection: got %v want %v", mem.Projected, 69-24)
	}
}

func TestMetricTrendsFailsWhenHistoryUnavailable(t *testing.T) {
	live := &fakeLive{metricsErr: errors.New("backend down")}
	svc := newPredictive(t, live, &fakeGenerator{})
	if _, err := svc.MetricTrends(context.Background(), ""); err == nil {
		t.Fatal("expected an error when metric history is unavailable")
	}
}

func TestDefaultConfig(t *testing.T) {
	svc := newPredictive(t, &fakeLive{}, &fakeGenerator{})
	cfg := svc.DefaultConfig()
	if cfg.ConfidenceThreshold != 70 || cfg.PredictionWindow != "24h" || cfg.AnalysisType != "performance" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
