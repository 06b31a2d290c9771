package engine

import (
	"log/slog"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
	"github.com/infrawatchstack/infrawatch-insight/internal/telemetry"
)

// Analyzer runs one predictive analysis pass: normalize telemetry, apply
// the threshold rule table per endpoint, add alert-frequency patterns and
// rank the merged candidates. All state is read-only after construction.
type Analyzer struct {
	logger     *slog.Logger
	normalizer *telemetry.Normalizer
	rules      *RuleTable
	patterns   *PatternDetector
}

// NewAnalyzer wires the analysis pipeline. A nil rule table falls back to
// the built-in thresholds.
func NewAnalyzer(logger *slog.Logger, rules *RuleTable) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = DefaultRuleTable()
	}
	rules.normalize()
	return &Analyzer{
		logger:     logger,
		normalizer: telemetry.NewNormalizer(logger),
		rules:      rules,
		patterns:   NewPatternDetector(logger, 3),
	}
}

// Analyze produces the ranked alert list for one snapshot. A snapshot with
// no usable detail degrades through the aggregate rules and finally the
// exemplar fallback inside Rank; Analyze itself never fails.
func (a *Analyzer) Analyze(snapshot telemetry.Snapshot, cfg models.PredictiveConfig) []models.PredictiveAlert {
	cfg.ConfidenceThreshold = models.ClampThreshold(cfg.ConfidenceThreshold)

	records := a.normalizer.Normalize(snapshot)
	candidates := make([]models.PredictiveAlert, 0, len(records)*2)
	for _, rec := range records {
		if !cfg.AllowsEndpoint(rec.EndpointName) {
			continue
		}
		candidates = append(candidates, a.rules.Evaluate(rec, cfg)...)
	}

	if len(records) == 0 {
		candidates = append(candidates, AggregateAlerts(snapshot.Aggregate, cfg)...)
	}

	candidates = append(candidates, a.patterns.Detect(snapshot.Alerts, cfg)...)

	ranked := Rank(candidates, cfg)
	a.logger.Info("predictive analysis complete",
		slog.String("shape", telemetry.Resolve(snapshot).String()),
		slog.Int("endpoints", len(records)),
		slog.Int("candidates", len(candidates)),
		slog.Int("alerts", len(ranked)),
		slog.Float64("threshold", cfg.ConfidenceThreshold),
	)
	return ranked
}
