package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/cache"
	"github.com/infrawatchstack/infrawatch-insight/internal/engine"
	"github.com/infrawatchstack/infrawatch-insight/internal/metrics"
	"github.com/infrawatchstack/infrawatch-insight/internal/models"
	"github.com/infrawatchstack/infrawatch-insight/internal/repo"
	"github.com/infrawatchstack/infrawatch-insight/internal/telemetry"
	"github.com/infrawatchstack/infrawatch-insight/internal/utils"
)

const predictiveSystemPrompt = "You are a predictive infrastructure analyst. " +
	"Given current telemetry and rule-derived alerts, respond with a JSON object " +
	`containing "summary" (string), "confidence" (0-100), "trends" (object) and ` +
	`"recommendations" (array of strings). Respond with JSON only.`

// PredictiveService runs the rule engine over live telemetry and enriches
// the result with a model-written summary. The rule pass always completes;
// a failing snapshot fetch or model call narrows the response instead of
// failing it.
type PredictiveService struct {
	logger    *slog.Logger
	analyzer  *engine.Analyzer
	live      LiveDataProvider
	llm       Generator
	cache     cache.Provider
	cacheTTL  time.Duration
	latencies *utils.LatencyTracker
}

// NewPredictiveService constructs the predictive facade. A nil provider
// disables analysis caching via the noop cache.
func NewPredictiveService(logger *slog.Logger, analyzer *engine.Analyzer, live LiveDataProvider, llm Generator, provider cache.Provider, analysisTTL time.Duration) *PredictiveService {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if analysisTTL <= 0 {
		analysisTTL = 2 * time.Minute
	}
	return &PredictiveService{
		logger:    logger,
		analyzer:  analyzer,
		live:      live,
		llm:       llm,
		cache:     provider,
		cacheTTL:  analysisTTL,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Analyze performs one predictive pass. A missing snapshot degrades to the
// exemplar path inside the analyzer; a failing model call keeps the
// rule-derived alerts and marks the summary as rules-only.
func (s *PredictiveService) Analyze(ctx context.Context, req models.PredictiveRequest) (models.PredictiveResponse, error) {
	if s.analyzer == nil {
		return models.PredictiveResponse{}, fmt.Errorf("analyzer not configured")
	}
	cacheKey := analysisCacheKey(req)
	if data, err := s.cache.Get(ctx, cacheKey); err == nil {
		var cached models.PredictiveResponse
		if json.Unmarshal(data, &cached) == nil {
			s.logger.Debug("analysis served from cache")
			return cached, nil
		}
	}

	start := time.Now()
	outcome := metrics.OutcomeSuccess

	snapshot := telemetry.Snapshot{}
	if s.live != nil {
		snap, err := s.live.GetInfrastructureOverview(ctx)
		if err != nil {
			outcome = metrics.OutcomeDegraded
			s.logger.Warn("overview unavailable, analyzing without telemetry", slog.String("error", err.Error()))
		} else {
			metrics.ObserveUpstreamCall("infrawatch", metrics.OutcomeSuccess)
			snapshot = snap
		}
	}

	cfg := req.Config
	if cfg.PredictionWindow == "" {
		cfg = models.NewPredictiveConfig(cfg.ConfidenceThreshold)
	}
	alerts := s.analyzer.Analyze(snapshot, cfg)
	if req.MaxAlerts > 0 && len(alerts) > req.MaxAlerts {
		alerts = alerts[:req.MaxAlerts]
	}

	summary := s.summarize(ctx, snapshot, alerts, &outcome)

	recommendations := append([]string(nil), summary.Recommendations...)
	for _, alert := range alerts {
		recommendations = append(recommendations, alert.SuggestedActions...)
	}
	recommendations = dedupeStrings(recommendations, 5)

	response := models.PredictiveResponse{
		Alerts:          alerts,
		Summary:         summary.Summary,
		Insights:        alertInsights(alerts),
		Confidence:      overallConfidence(summary.Confidence, alerts),
		Trends:          summary.Trends,
		Recommendations: recommendations,
		Timestamp:       time.Now().UTC(),
		Metadata: map[string]any{
			"shape":        telemetry.Resolve(snapshot).String(),
			"alerts_total": len(alerts),
			"threshold":    models.ClampThreshold(cfg.ConfidenceThreshold),
		},
	}

	// Degraded passes stay uncached so recovery is picked up immediately.
	if outcome == metrics.OutcomeSuccess {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL); err != nil {
				s.logger.Warn("analysis cache write failed", slog.String("error", err.Error()))
			}
		}
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, outcome)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return response, nil
}

// CurrentAlerts runs a default-config pass and returns only the alert list.
func (s *PredictiveService) CurrentAlerts(ctx context.Context) ([]models.PredictiveAlert, error) {
	response, err := s.Analyze(ctx, models.PredictiveRequest{Config: models.DefaultPredictiveConfig()})
	if err != nil {
		return nil, err
	}
	return response.Alerts, nil
}

// DefaultConfig exposes engine defaults for the config endpoint.
func (s *PredictiveService) DefaultConfig() models.PredictiveConfig {
	return models.DefaultPredictiveConfig()
}

// LatencyP95 returns the current p95 analysis latency.
func (s *PredictiveService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// MetricTrends folds recent per-endpoint samples into per-metric trend
// lines: latest value, hourly velocity, and a linear projection to the
// end of the window. Metrics with fewer than two samples are skipped.
func (s *PredictiveService) MetricTrends(ctx context.Context, window string) ([]models.MetricTrend, error) {
	if s.live == nil {
		return nil, fmt.Errorf("live data provider not configured")
	}
	if window == "" {
		window = models.DefaultPredictiveConfig().PredictionWindow
	}
	samples, err := s.live.GetRecentMetrics(ctx, window)
	if err != nil {
		metrics.ObserveUpstreamCall("infrawatch", metrics.OutcomeError)
		return nil, fmt.Errorf("fetch recent metrics: %w", err)
	}
	metrics.ObserveUpstreamCall("infrawatch", metrics.OutcomeSuccess)

	type series struct {
		values []float64
		first  time.Time
		last   time.Time
	}
	byMetric := map[string]*series{}
	for _, sample := range samples {
		for name, raw := range sample.Metrics {
			value, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
			if err != nil {
				continue
			}
			line := byMetric[name]
			if line == nil {
				line = &series{first: sample.Timestamp}
				byMetric[name] = line
			}
			line.values = append(line.values, value)
			line.last = sample.Timestamp
		}
	}

	hours := utils.WindowHours(window, 24)
	trends := make([]models.MetricTrend, 0, len(byMetric))
	for name, line := range byMetric {
		if len(line.values) < 2 {
			continue
		}
		perSample := engine.TrendVelocity(line.values)
		perHour := perSample
		if spacing := utils.DurationMinutes(line.first, line.last) / float64(len(line.values)-1); spacing > 0 {
			perHour = perSample * (60 / spacing)
		}
		current := line.values[len(line.values)-1]
		trends = append(trends, models.MetricTrend{
			Metric:         name,
			Current:        current,
			VelocityPerHr:  perHour,
			Projected:      engine.ProjectValue(current, perHour, hours),
			Direction:      trendDirection(perHour),
			Samples:        len(line.values),
			ProjectedHours: hours,
		})
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Metric < trends[j].Metric })
	return trends, nil
}

func trendDirection(velocityPerHour float64) string {
	switch {
	case velocityPerHour > 0.1:
		return "rising"
	case velocityPerHour < -0.1:
		return "falling"
	default:
		return "stable"
	}
}

// summarize asks the model for a structured summary of the rule output,
// falling back to a rules-only summary when the model is unavailable.
func (s *PredictiveService) summarize(ctx context.Context, snapshot telemetry.Snapshot, alerts []models.PredictiveAlert, outcome *string) models.PredictiveSummary {
	if s.llm == nil {
		return rulesOnlySummary(alerts)
	}

	raw, err := s.llm.Generate(ctx, repo.Prompt{
		System: predictiveSystemPrompt,
		Query:  renderAnalysisPrompt(snapshot, alerts),
	})
	if err != nil {
		metrics.ObserveUpstreamCall("gemini", metrics.OutcomeError)
		*outcome = metrics.OutcomeDegraded
		s.logger.Warn("summary generation failed, using rule output only", slog.String("error", err.Error()))
		return rulesOnlySummary(alerts)
	}
	metrics.ObserveUpstreamCall("gemini", metrics.OutcomeSuccess)
	return repo.ParsePredictiveSummary(raw)
}

func renderAnalysisPrompt(snapshot telemetry.Snapshot, alerts []models.PredictiveAlert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fleet: %d endpoints, %d online, %d offline. Active alerts: %d.\n\n",
		snapshot.Aggregate.Total, snapshot.Aggregate.Online, snapshot.Aggregate.Offline, snapshot.ActiveAlerts)

	sb.WriteString("Rule-derived predictive alerts:\n")
	if len(alerts) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		sb.Write(payload)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nSummarize the infrastructure outlook for the next 24 hours.")
	return sb.String()
}

// alertInsights renders each ranked alert as an insight record: warning at
// probability 80 and above, info below, with the timeframe and the first
// two suggested actions folded into the recommendation.
func alertInsights(alerts []models.PredictiveAlert) []models.AIInsight {
	insights := make([]models.AIInsight, 0, len(alerts))
	for _, alert := range alerts {
		typ := models.InsightInfo
		if alert.Probability >= 80 {
			typ = models.InsightWarning
		}
		recommendation := "Expected timeframe: " + alert.EstimatedTime
		if actions := alert.SuggestedActions; len(actions) > 0 {
			if len(actions) > 2 {
				actions = actions[:2]
			}
			recommendation += ". " + strings.Join(actions, "; ")
		}
		insights = append(insights, models.AIInsight{
			Title:          fmt.Sprintf("%s issue predicted for %s", alert.Metric, alert.Endpoint),
			Description:    alert.PredictedIssue,
			Type:           typ,
			Confidence:     alert.Probability,
			Recommendation: recommendation,
			SourceData:     map[string]any{"alert_id": alert.ID, "metric": alert.Metric},
		})
	}
	return insights
}

// analysisCacheKey derives a stable cache key from the request parameters.
func analysisCacheKey(req models.PredictiveRequest) string {
	payload, err := json.Marshal(req)
	if err != nil {
		return "insight:analysis:v1:default"
	}
	sum := md5.Sum(payload)
	return "insight:analysis:v1:" + hex.EncodeToString(sum[:])
}

// rulesOnlySummary derives a summary from alerts alone. Confidence comes
// from the mean alert probability so the merged figure stays meaningful
// without the model.
func rulesOnlySummary(alerts []models.PredictiveAlert) models.PredictiveSummary {
	if len(alerts) == 0 {
		return models.PredictiveSummary{
			Summary:    "No predictive issues detected in the current analysis window.",
			Confidence: 60,
			Trends:     map[string]any{},
		}
	}
	return models.PredictiveSummary{
		Summary:    fmt.Sprintf("Rule analysis identified %d potential issues; highest probability %.0f%% (%s on %s).", len(alerts), alerts[0].Probability, alerts[0].Metric, alerts[0].Endpoint),
		Confidence: meanProbability(alerts),
		Trends:     map[string]any{},
	}
}

// overallConfidence averages the model's confidence with the mean alert
// probability; with no alerts the model figure stands alone.
func overallConfidence(llmConfidence float64, alerts []models.PredictiveAlert) float64 {
	if len(alerts) == 0 {
		return llmConfidence
	}
	return (llmConfidence + meanProbability(alerts)) / 2
}

func meanProbability(alerts []models.PredictiveAlert) float64 {
	if len(alerts) == 0 {
		return 0
	}
	sum := 0.0
	for _, alert := range alerts {
		sum += alert.Probability
	}
	return sum / float64(len(alerts))
}
