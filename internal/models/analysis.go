package models

import "time"

// AnalysisResult is the unit returned to the boundary layer for chat and
// metric analysis. It is always constructible: failures produce a degraded
// instance with confidence 0 instead of an error.
type AnalysisResult struct {
	Answer      string         `json:"answer"`
	Confidence  float64        `json:"confidence"`
	Sources     []string       `json:"sources"`
	Suggestions []string       `json:"suggestions"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// DegradedResult is the fixed fallback handed out when generation fails.
func DegradedResult(reason string) AnalysisResult {
	meta := map[string]any{}
	if reason != "" {
		meta["error"] = reason
	}
	return AnalysisResult{
		Answer:      "Sorry, something went wrong while processing your request. Please try again or rephrase the question.",
		Confidence:  0,
		Sources:     []string{},
		Suggestions: []string{"Try rephrasing the question", "Check backend connectivity", "Review system logs"},
		Metadata:    meta,
		Timestamp:   time.Now().UTC(),
	}
}

// MessageRole identifies who produced a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Message string      `json:"message"`
}

// InsightType classifies automatic insights.
type InsightType string

const (
	InsightInfo     InsightType = "info"
	InsightSuccess  InsightType = "success"
	InsightWarning  InsightType = "warning"
	InsightCritical InsightType = "critical"
)

// AIInsight is a single automatically derived observation about the fleet.
type AIInsight struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Type           InsightType    `json:"type"`
	Confidence     float64        `json:"confidence"`
	Recommendation string         `json:"recommendation"`
	SourceData     map[string]any `json:"source_data,omitempty"`
}

// PredictiveSummary is the structured portion of an LLM predictive analysis.
type PredictiveSummary struct {
	Summary         string         `json:"summary"`
	Confidence      float64        `json:"confidence"`
	Trends          map[string]any `json:"trends"`
	Recommendations []string       `json:"recommendations"`
}
