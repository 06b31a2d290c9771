package models

import (
	"time"

	"github.com/google/uuid"
)

// PredictiveAlert is a probability-scored prediction of a near-future
// failure on one endpoint. Alerts are immutable once constructed.
type PredictiveAlert struct {
	ID                  string    `json:"id"`
	Endpoint            string    `json:"endpoint"`
	Metric              string    `json:"metric"`
	PredictedIssue      string    `json:"predicted_issue"`
	Probability         float64   `json:"probability"`
	EstimatedTime       string    `json:"estimated_time"`
	SuggestedActions    []string  `json:"suggested_actions"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	IsExemplar          bool      `json:"is_exemplar"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewPredictiveAlert builds an alert, clamping probability into [0,100].
// Out-of-range probabilities are accepted and clamped rather than rejected.
func NewPredictiveAlert(endpoint, metric, issue string, probability float64, estimatedTime string, actions []string, threshold float64) PredictiveAlert {
	if probability < 0 {
		probability = 0
	}
	if probability > 100 {
		probability = 100
	}
	return PredictiveAlert{
		ID:                  uuid.NewString(),
		Endpoint:            endpoint,
		Metric:              metric,
		PredictedIssue:      issue,
		Probability:         probability,
		EstimatedTime:       estimatedTime,
		SuggestedActions:    append([]string(nil), actions...),
		ConfidenceThreshold: threshold,
		CreatedAt:           time.Now().UTC(),
	}
}

// PredictiveConfig governs rule evaluation and ranking.
type PredictiveConfig struct {
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	PredictionWindow    string   `json:"prediction_window"`
	AnalysisType        string   `json:"analysis_type"`
	RealTimeEnabled     bool     `json:"real_time_enabled"`
	TimeRange           string   `json:"time_range"`
	Endpoints           []string `json:"endpoints,omitempty"`
}

// NewPredictiveConfig builds a config with the threshold clamped into
// [50,100]. The engine never surfaces alerts below 50% confidence, so a
// lower floor is silently raised rather than rejected.
func NewPredictiveConfig(threshold float64) PredictiveConfig {
	cfg := DefaultPredictiveConfig()
	cfg.ConfidenceThreshold = ClampThreshold(threshold)
	return cfg
}

// DefaultPredictiveConfig mirrors the defaults exposed on the config endpoint.
func DefaultPredictiveConfig() PredictiveConfig {
	return PredictiveConfig{
		ConfidenceThreshold: 70,
		PredictionWindow:    "24h",
		AnalysisType:        "performance",
		RealTimeEnabled:     false,
		TimeRange:           "24h",
	}
}

// ClampThreshold forces a confidence threshold into the supported [50,100] range.
func ClampThreshold(t float64) float64 {
	if t < 50 {
		return 50
	}
	if t > 100 {
		return 100
	}
	return t
}

// AllowsEndpoint reports whether the optional allow-list admits the endpoint.
// An empty list admits everything.
func (c PredictiveConfig) AllowsEndpoint(name string) bool {
	if len(c.Endpoints) == 0 {
		return true
	}
	for _, e := range c.Endpoints {
		if e == name {
			return true
		}
	}
	return false
}

// AlertRecord is an externally supplied historical alert used for
// frequency pattern detection. Only the endpoint identity matters to the
// detector; the remaining fields are carried for knowledge-base rendering.
type AlertRecord struct {
	ID          int    `json:"id"`
	Endpoint    string `json:"endpoint"`
	EndpointID  int    `json:"id_endpoint"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`
}
