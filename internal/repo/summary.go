package repo

import (
	"encoding/json"
	"strings"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// ParsePredictiveSummary recovers a structured summary from raw model
// output. Tiers, tried in order: the whole text as JSON, a fenced or
// embedded JSON object, keyword scraping of free text, and finally a fixed
// degraded summary. It never fails; the caller inspects Confidence to tell
// the tiers apart.
func ParsePredictiveSummary(raw string) models.PredictiveSummary {
	raw = strings.TrimSpace(raw)

	if summary, ok := decodeSummary(raw); ok {
		return summary
	}
	if embedded := extractJSONObject(raw); embedded != "" {
		if summary, ok := decodeSummary(embedded); ok {
			return summary
		}
	}
	if summary, ok := scrapeSummary(raw); ok {
		return summary
	}
	return models.PredictiveSummary{
		Summary:         "Predictive analysis completed, but the model response could not be interpreted.",
		Confidence:      30,
		Trends:          map[string]any{},
		Recommendations: []string{"Review infrastructure metrics manually", "Retry the analysis"},
	}
}

func decodeSummary(text string) (models.PredictiveSummary, bool) {
	var summary models.PredictiveSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return models.PredictiveSummary{}, false
	}
	if strings.TrimSpace(summary.Summary) == "" {
		return models.PredictiveSummary{}, false
	}
	if summary.Trends == nil {
		summary.Trends = map[string]any{}
	}
	return summary, true
}

// extractJSONObject strips markdown fences and falls back to the outermost
// brace pair. Returns "" when no object-shaped substring exists.
func extractJSONObject(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}

// scrapeSummary pulls a summary line and bullet recommendations out of free
// text when the model ignored the JSON instruction.
func scrapeSummary(text string) (models.PredictiveSummary, bool) {
	if text == "" {
		return models.PredictiveSummary{}, false
	}

	summary := models.PredictiveSummary{
		Confidence: 60,
		Trends:     map[string]any{},
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "summary:"):
			summary.Summary = strings.TrimSpace(line[len("summary:"):])
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			summary.Recommendations = append(summary.Recommendations, strings.TrimSpace(line[2:]))
		}
	}
	if summary.Summary == "" {
		// Fall back to the first sentence-ish chunk of the text.
		first := strings.SplitN(text, "\n", 2)[0]
		if len(first) > 300 {
			first = first[:300]
		}
		summary.Summary = strings.TrimSpace(first)
	}
	return summary, summary.Summary != ""
}
