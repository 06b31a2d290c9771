package models

import "time"

// AnalysisRequest is a chat/RAG query against the knowledge corpus.
type AnalysisRequest struct {
	Query           string        `json:"query"`
	History         []ChatMessage `json:"history,omitempty"`
	IncludeLiveData bool          `json:"include_live_data"`
}

// PredictiveRequest parameterises one predictive analysis pass.
type PredictiveRequest struct {
	Config          PredictiveConfig `json:"config"`
	IncludeLiveData bool             `json:"include_live_data"`
	MaxAlerts       int              `json:"max_alerts"`
}

// PredictiveResponse is the boundary-layer shape of one analysis pass.
type PredictiveResponse struct {
	Alerts          []PredictiveAlert `json:"alerts"`
	Summary         string            `json:"summary"`
	Insights        []AIInsight       `json:"insights"`
	Confidence      float64           `json:"confidence"`
	Trends          map[string]any    `json:"trends"`
	Recommendations []string          `json:"recommendations"`
	Timestamp       time.Time         `json:"timestamp"`
	Metadata        map[string]any    `json:"metadata"`
}
