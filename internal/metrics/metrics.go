package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed operations.
	OutcomeSuccess = "success"
	// OutcomeDegraded labels operations that fell back to a degraded result.
	OutcomeDegraded = "degraded"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "analyses_total",
			Help:      "Total number of predictive analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insight",
			Name:      "analysis_seconds",
			Help:      "Predictive analysis latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "chat_queries_total",
			Help:      "Total number of chat queries handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insight",
			Name:      "chat_query_seconds",
			Help:      "Chat query latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 30},
		},
	)

	upstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insight",
			Name:      "upstream_calls_total",
			Help:      "Calls to upstream dependencies, partitioned by target and outcome.",
		},
		[]string{"target", "outcome"},
	)

	knowledgeDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "insight",
			Name:      "knowledge_documents",
			Help:      "Number of documents currently in the knowledge corpus.",
		},
	)
)

// Register attaches the service collectors to the supplied Prometheus
// registerer. Double registration is tolerated so tests can share a registry.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		queriesTotal,
		queryDurationSeconds,
		upstreamCallsTotal,
		knowledgeDocuments,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one predictive analysis duration and outcome.
func ObserveAnalysis(duration time.Duration, outcome string) {
	analysesTotal.WithLabelValues(normalizeOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveQuery records one chat query duration and outcome.
func ObserveQuery(duration time.Duration, outcome string) {
	queriesTotal.WithLabelValues(normalizeOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	queryDurationSeconds.Observe(duration.Seconds())
}

// ObserveUpstreamCall counts one dependency call by target ("infrawatch",
// "gemini") and outcome.
func ObserveUpstreamCall(target, outcome string) {
	upstreamCallsTotal.WithLabelValues(target, normalizeOutcome(outcome)).Inc()
}

// SetKnowledgeDocuments updates the corpus size gauge.
func SetKnowledgeDocuments(n int) {
	knowledgeDocuments.Set(float64(n))
}

func normalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomeError, OutcomeDegraded:
		return outcome
	default:
		return OutcomeSuccess
	}
}
