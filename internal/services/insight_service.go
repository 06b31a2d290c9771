package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/metrics"
	"github.com/infrawatchstack/infrawatch-insight/internal/models"
	"github.com/infrawatchstack/infrawatch-insight/internal/repo"
	"github.com/infrawatchstack/infrawatch-insight/internal/retrieval"
	"github.com/infrawatchstack/infrawatch-insight/internal/telemetry"
	"github.com/infrawatchstack/infrawatch-insight/internal/utils"
)

// LiveDataProvider supplies current infrastructure state. Implemented by
// repo.InfraWatchClient; tests substitute fakes.
type LiveDataProvider interface {
	GetInfrastructureOverview(ctx context.Context) (telemetry.Snapshot, error)
	GetAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
	GetRecentMetrics(ctx context.Context, timeRange string) ([]models.MetricSnapshot, error)
}

// Generator produces text from an assembled prompt. Implemented by
// repo.GeminiClient.
type Generator interface {
	Generate(ctx context.Context, prompt repo.Prompt) (string, error)
}

const chatSystemPrompt = "You are an infrastructure monitoring assistant. " +
	"Answer using the provided knowledge base context and live telemetry. " +
	"Be concise and practical; when recommending actions, list them as bullets."

// InsightService orchestrates chat analysis over the knowledge corpus and
// live telemetry. Retrieval and live-data branches run concurrently and fail
// independently; only generation failure degrades the result, and even then
// the caller receives a well-formed AnalysisResult rather than an error.
type InsightService struct {
	logger          *slog.Logger
	store           retrieval.Store
	llm             Generator
	live            LiveDataProvider
	latencies       *utils.LatencyTracker
	contextMaxChars int
	topK            int
}

// NewInsightService constructs the chat/knowledge facade.
func NewInsightService(logger *slog.Logger, store retrieval.Store, llm Generator, live LiveDataProvider, contextMaxChars, topK int) *InsightService {
	if logger == nil {
		logger = slog.Default()
	}
	if contextMaxChars <= 0 {
		contextMaxChars = 2000
	}
	if topK <= 0 {
		topK = 3
	}
	return &InsightService{
		logger:          logger,
		store:           store,
		llm:             llm,
		live:            live,
		latencies:       utils.NewLatencyTracker(1024),
		contextMaxChars: contextMaxChars,
		topK:            topK,
	}
}

// ProcessQuery answers one chat query. Context retrieval and the live-data
// fetch fan out concurrently; a failed branch is absorbed and the prompt is
// built from whatever arrived. Generation failure returns the degraded
// result, never an error.
func (s *InsightService) ProcessQuery(ctx context.Context, req models.AnalysisRequest) models.AnalysisResult {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		metrics.ObserveQuery(time.Since(start), metrics.OutcomeError)
		return models.DegradedResult("empty query")
	}

	var (
		wg       sync.WaitGroup
		hits     []retrieval.SearchResult
		liveData string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results, err := s.store.Search(ctx, query, s.topK, nil)
		if err != nil {
			s.logger.Warn("context retrieval failed", slog.String("error", err.Error()))
			return
		}
		hits = results
	}()
	if req.IncludeLiveData && s.live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			liveData = s.collectLiveData(ctx)
		}()
	}
	wg.Wait()

	contextText := strings.Join(retrieval.AssembleContext(hits, s.contextMaxChars), retrieval.ContextSeparator)

	answer, err := s.llm.Generate(ctx, repo.Prompt{
		System:   chatSystemPrompt,
		Context:  contextText,
		LiveData: liveData,
		History:  req.History,
		Query:    query,
	})
	if err != nil {
		metrics.ObserveUpstreamCall("gemini", metrics.OutcomeError)
		metrics.ObserveQuery(time.Since(start), metrics.OutcomeDegraded)
		reason := "generation failed"
		if errors.Is(err, repo.ErrLLMTimeout) {
			reason = "generation timed out"
		}
		s.logger.Error("chat generation failed", slog.String("error", err.Error()))
		return models.DegradedResult(reason)
	}
	metrics.ObserveUpstreamCall("gemini", metrics.OutcomeSuccess)
	if strings.TrimSpace(answer) == "" {
		metrics.ObserveQuery(time.Since(start), metrics.OutcomeDegraded)
		return models.DegradedResult("empty answer")
	}

	sources := make([]string, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, sourceLabel(hit))
	}

	result := models.AnalysisResult{
		Answer:      answer,
		Confidence:  answerConfidence(answer, contextText),
		Sources:     sources,
		Suggestions: extractSuggestions(answer),
		Metadata: map[string]any{
			"context_documents": len(hits),
			"live_data":         liveData != "",
		},
		Timestamp: time.Now().UTC(),
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	metrics.ObserveQuery(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("chat query latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return result
}

// collectLiveData joins the overview and recent-metric fetches; either
// branch may fail without sinking the other.
func (s *InsightService) collectLiveData(ctx context.Context) string {
	var (
		wg          sync.WaitGroup
		snapshot    telemetry.Snapshot
		haveSnap    bool
		recent      []models.MetricSnapshot
		haveMetrics bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, err := s.live.GetInfrastructureOverview(ctx)
		if err != nil {
			metrics.ObserveUpstreamCall("infrawatch", metrics.OutcomeError)
			s.logger.Warn("overview fetch failed", slog.String("error", err.Error()))
			return
		}
		metrics.ObserveUpstreamCall("infrawatch", metrics.OutcomeSuccess)
		snapshot, haveSnap = snap, true
	}()
	go func() {
		defer wg.Done()
		samples, err := s.live.GetRecentMetrics(ctx, "24h")
		if err != nil {
			s.logger.Warn("recent metrics fetch failed", slog.String("error", err.Error()))
			return
		}
		recent, haveMetrics = samples, true
	}()
	wg.Wait()

	if !haveSnap && !haveMetrics {
		return ""
	}

	var sb strings.Builder
	if haveSnap {
		fmt.Fprintf(&sb, "Fleet: %d endpoints, %d online, %d offline (uptime %.1f%%, status %s).\n",
			snapshot.Aggregate.Total, snapshot.Aggregate.Online, snapshot.Aggregate.Offline,
			snapshot.UptimePercentage, snapshot.HealthStatus)
		if len(snapshot.Alerts) > 0 {
			fmt.Fprintf(&sb, "Active alerts: %d.\n", len(snapshot.Alerts))
			for i, alert := range snapshot.Alerts {
				if i >= 5 {
					break
				}
				fmt.Fprintf(&sb, "- [%s] %s: %s\n", alert.Severity, alert.Endpoint, alert.Title)
			}
		}
	}
	if haveMetrics && len(recent) > 0 {
		fmt.Fprintf(&sb, "Recent samples (%d endpoints):\n", len(recent))
		for i, sample := range recent {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&sb, "- %s (%s): %v\n", sample.EndpointName, sample.Status, sample.Metrics)
		}
	}
	return sb.String()
}

// AddDocument stores one document and persists the corpus.
func (s *InsightService) AddDocument(ctx context.Context, content string, metadata map[string]any) (string, error) {
	id, err := s.store.Add(ctx, content, metadata)
	if err != nil {
		return "", err
	}
	if err := s.store.Persist(); err != nil {
		s.logger.Warn("knowledge base persist failed", slog.String("error", err.Error()))
	}
	metrics.SetKnowledgeDocuments(s.store.Stats().TotalDocuments)
	return id, nil
}

// SearchKnowledge exposes raw ranked retrieval for the API layer.
func (s *InsightService) SearchKnowledge(ctx context.Context, query string, k int, filter map[string]any) ([]retrieval.SearchResult, error) {
	return s.store.Search(ctx, query, k, filter)
}

// KnowledgeStats reports corpus totals.
func (s *InsightService) KnowledgeStats() retrieval.Stats {
	return s.store.Stats()
}

// RefreshKnowledgeBase re-renders the current infrastructure state into
// corpus documents so retrieval reflects recent topology. Documents are
// additive; identical snapshots produce new entries.
func (s *InsightService) RefreshKnowledgeBase(ctx context.Context) (int, error) {
	if s.live == nil {
		return 0, errors.New("no live data provider configured")
	}
	snapshot, err := s.live.GetInfrastructureOverview(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh knowledge base: %w", err)
	}
	averages := s.recentAverages(ctx)

	added := 0
	for _, ep := range snapshot.Endpoints {
		content := fmt.Sprintf("Endpoint %s is currently %s. Reported data: %v.", ep.Name, ep.Status, ep.Data)
		if avg, ok := averages[ep.Name]; ok {
			content += " Recent averages: " + avg + "."
		}
		if _, err := s.store.Add(ctx, content, map[string]any{"type": "endpoint_status", "endpoint": ep.Name}); err == nil {
			added++
		}
	}
	for _, alert := range snapshot.Alerts {
		content := fmt.Sprintf("Alert on %s (%s): %s. %s", alert.Endpoint, alert.Severity, alert.Title, alert.Description)
		if _, err := s.store.Add(ctx, content, map[string]any{"type": "alert_history", "endpoint": alert.Endpoint}); err == nil {
			added++
		}
	}
	if added > 0 {
		if err := s.store.Persist(); err != nil {
			s.logger.Warn("knowledge base persist failed", slog.String("error", err.Error()))
		}
	}
	metrics.SetKnowledgeDocuments(s.store.Stats().TotalDocuments)
	s.logger.Info("knowledge base refreshed", slog.Int("documents_added", added))
	return added, nil
}

// recentAverages folds recent samples into a rendered per-endpoint summary
// of mean metric values. A failed fetch yields an empty map; the refresh
// proceeds with overview data alone.
func (s *InsightService) recentAverages(ctx context.Context) map[string]string {
	samples, err := s.live.GetRecentMetrics(ctx, "24h")
	if err != nil {
		s.logger.Warn("recent metrics unavailable during refresh", slog.String("error", err.Error()))
		return nil
	}

	type acc struct {
		sum   map[string]float64
		count map[string]int
	}
	byEndpoint := map[string]*acc{}
	for _, sample := range samples {
		a := byEndpoint[sample.EndpointName]
		if a == nil {
			a = &acc{sum: map[string]float64{}, count: map[string]int{}}
			byEndpoint[sample.EndpointName] = a
		}
		for name, raw := range sample.Metrics {
			value, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
			if err != nil {
				continue
			}
			a.sum[name] += value
			a.count[name]++
		}
	}

	rendered := make(map[string]string, len(byEndpoint))
	for endpoint, a := range byEndpoint {
		names := make([]string, 0, len(a.sum))
		for name := range a.sum {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s %.1f", name, a.sum[name]/float64(a.count[name])))
		}
		if len(parts) > 0 {
			rendered[endpoint] = strings.Join(parts, ", ")
		}
	}
	return rendered
}

// AutomaticInsights derives rule-of-thumb observations from the current
// snapshot without involving the model.
func (s *InsightService) AutomaticInsights(ctx context.Context) ([]models.AIInsight, error) {
	if s.live == nil {
		return nil, errors.New("no live data provider configured")
	}
	snapshot, err := s.live.GetInfrastructureOverview(ctx)
	if err != nil {
		return nil, fmt.Errorf("automatic insights: %w", err)
	}

	insights := make([]models.AIInsight, 0, 5)
	counts := snapshot.Aggregate
	if counts.Total == 0 {
		insights = append(insights, models.AIInsight{
			Title:          "No endpoints reported",
			Description:    "The monitoring backend returned no endpoints; telemetry may be disconnected.",
			Type:           models.InsightWarning,
			Confidence:     70,
			Recommendation: "Verify the monitoring backend connection and endpoint registration",
		})
		return insights, nil
	}
	if counts.Offline > 0 {
		typ, conf := models.InsightWarning, 85.0
		if float64(counts.Offline) > float64(counts.Total)*0.2 {
			typ, conf = models.InsightCritical, 95
		}
		insights = append(insights, models.AIInsight{
			Title:          fmt.Sprintf("%d endpoints offline", counts.Offline),
			Description:    fmt.Sprintf("%d of %d endpoints are not responding.", counts.Offline, counts.Total),
			Type:           typ,
			Confidence:     conf,
			Recommendation: "Check connectivity and power for the affected endpoints",
			SourceData:     map[string]any{"offline": counts.Offline, "total": counts.Total},
		})
	}
	if uptime := counts.UptimeRatio(); uptime < 99 {
		typ, conf := models.InsightWarning, 85.0
		if uptime < 95 {
			typ, conf = models.InsightCritical, 92
		}
		insights = append(insights, models.AIInsight{
			Title:          "Fleet availability degraded",
			Description:    fmt.Sprintf("Overall uptime is %.1f%%.", uptime),
			Type:           typ,
			Confidence:     conf,
			Recommendation: "Prioritize restoring offline endpoints before capacity work",
			SourceData:     map[string]any{"uptime": uptime},
		})
	}
	if active := len(snapshot.Alerts); active > 0 {
		typ, conf := models.InsightInfo, 75.0
		if active >= 5 {
			typ, conf = models.InsightCritical, 90
		}
		insights = append(insights, models.AIInsight{
			Title:          fmt.Sprintf("%d active alerts", active),
			Description:    fmt.Sprintf("%d alerts are currently active across the fleet.", active),
			Type:           typ,
			Confidence:     conf,
			Recommendation: "Review recurring alerts for a common root cause",
			SourceData:     map[string]any{"active_alerts": active},
		})
	}
	if counts.Total > 20 {
		insights = append(insights, models.AIInsight{
			Title:          "Fleet size growing",
			Description:    fmt.Sprintf("Monitoring %d endpoints.", counts.Total),
			Type:           models.InsightInfo,
			Confidence:     60,
			Recommendation: "Consider grouping endpoints to keep alert routing manageable",
		})
	}
	if len(insights) == 0 {
		insights = append(insights, models.AIInsight{
			Title:          "Infrastructure healthy",
			Description:    fmt.Sprintf("All %d endpoints are online with no elevated alert activity.", counts.Total),
			Type:           models.InsightSuccess,
			Confidence:     90,
			Recommendation: "No action needed",
		})
	}
	sortInsights(insights)
	return insights, nil
}

// LatencyP95 returns the current p95 chat latency.
func (s *InsightService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// answerConfidence scores an answer heuristically: 50 base, plus bonuses
// for retrieved context, substantive length and domain vocabulary, capped
// at 95. The model's own certainty is not consulted.
func answerConfidence(answer, contextText string) float64 {
	confidence := 50.0
	if contextText != "" {
		confidence += 20
	}
	if len(answer) > 200 {
		confidence += 10
	}
	lower := strings.ToLower(answer)
	for _, kw := range []string{"endpoint", "monitor", "alert", "network", "server", "cpu", "memory", "latency"} {
		if strings.Contains(lower, kw) {
			confidence += 15
			break
		}
	}
	if confidence > 95 {
		confidence = 95
	}
	return confidence
}

// extractSuggestions pulls bullet lines out of the answer, capped at three.
func extractSuggestions(answer string) []string {
	suggestions := make([]string, 0, 3)
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			suggestions = append(suggestions, strings.TrimSpace(line[2:]))
			if len(suggestions) == 3 {
				break
			}
		}
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions,
			"Ask about a specific endpoint or metric",
			"Request the current infrastructure overview",
		)
	}
	return suggestions
}

func sourceLabel(hit retrieval.SearchResult) string {
	if t, ok := hit.Metadata["type"]; ok {
		return fmt.Sprintf("%v:%s", t, hit.ID)
	}
	return hit.ID
}

// dedupeStrings keeps first occurrences, case-insensitively, preserving order.
func dedupeStrings(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// sortInsights orders insights most severe first for stable API output.
func sortInsights(insights []models.AIInsight) {
	rank := map[models.InsightType]int{
		models.InsightCritical: 0,
		models.InsightWarning:  1,
		models.InsightInfo:     2,
		models.InsightSuccess:  3,
	}
	sort.SliceStable(insights, func(i, j int) bool {
		return rank[insights[i].Type] < rank[insights[j].Type]
	})
}
