package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// Normalizer converts upstream telemetry payloads into canonical
// per-endpoint metric records. Normalization never fails: fields that are
// missing or non-numeric are dropped and the record degrades to whatever
// could be derived.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize resolves the snapshot shape and produces canonical records.
// Aggregate-only snapshots yield an empty slice; the aggregate rule path
// handles them separately.
func (n *Normalizer) Normalize(s Snapshot) []models.CanonicalEndpointMetric {
	switch Resolve(s) {
	case ShapeEndpoints:
		return n.fromEndpoints(s.Endpoints, s.Timestamp)
	case ShapeMonitors:
		return n.fromMonitors(s.Monitors, s.Timestamp)
	default:
		return nil
	}
}

func (n *Normalizer) fromEndpoints(endpoints []EndpointPayload, ts time.Time) []models.CanonicalEndpointMetric {
	records := make([]models.CanonicalEndpointMetric, 0, len(endpoints))
	for _, ep := range endpoints {
		rec := models.CanonicalEndpointMetric{
			EndpointID:   strconv.Itoa(ep.ID),
			EndpointName: endpointName(ep.Name, ep.ID),
			Status:       parseStatus(ep.Status),
			LastUpdated:  orNow(ts),
		}
		rec.CPUUsage = numericField(ep.Data, "cpu_usage")
		rec.MemoryUsage = numericField(ep.Data, "memory_usage")
		if rt := numericField(ep.Data, "response_time"); rt != nil {
			rec.ResponseTimeMS = rt
		} else {
			rec.ResponseTimeMS = numericField(ep.Data, "response_time_ms")
		}
		if rec.Status == models.StatusUnknown {
			if raw, ok := ep.Data["status"]; ok {
				rec.Status = parseStatus(fmt.Sprintf("%v", raw))
			}
		}
		records = append(records, rec)
	}
	return records
}

func (n *Normalizer) fromMonitors(monitors []MonitorPayload, ts time.Time) []models.CanonicalEndpointMetric {
	records := make([]models.CanonicalEndpointMetric, 0, len(monitors))
	for _, mon := range monitors {
		rec := models.CanonicalEndpointMetric{
			EndpointID:   strconv.Itoa(mon.ID),
			EndpointName: endpointName(mon.Name, mon.ID),
			LastUpdated:  orNow(ts),
		}

		rec.CPUUsage = numericField(mon.Metrics, keyProcessorLoad)
		rec.MemoryUsage = deriveMemoryUsage(mon.Metrics)
		if rtt := numericField(mon.Metrics, keyPingRTT); rtt != nil {
			rec.ResponseTimeMS = rtt
		} else {
			rec.ResponseTimeMS = numericField(mon.Metrics, keyRTT)
		}

		if truthy(mon.Status) {
			rec.Status = models.StatusOnline
		} else {
			rec.Status = models.StatusOffline
		}
		// An explicit active=false flag wins over the status flag.
		if mon.Active != nil && !*mon.Active {
			rec.Status = models.StatusDisabled
		}

		records = append(records, rec)
	}
	return records
}

// deriveMemoryUsage computes (total-available)/total*100 from the raw
// counters, guarding against a zero or missing total.
func deriveMemoryUsage(metrics map[string]any) *float64 {
	total := numericField(metrics, keyMemTotal)
	avail := numericField(metrics, keyMemAvail)
	if total == nil || avail == nil || *total <= 0 {
		return nil
	}
	usage := (*total - *avail) / *total * 100
	return &usage
}

// numericField extracts a float from a loosely typed map value. Strings
// such as "85" or "85%" are accepted; anything else is dropped silently.
func numericField(m map[string]any, key string) *float64 {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(v), "%")
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return &f
		}
	case bool:
		// Booleans are flags, never metric values.
	}
	return nil
}

func truthy(v any) bool {
	switch s := v.(type) {
	case bool:
		return s
	case float64:
		return s != 0
	case int:
		return s != 0
	case string:
		lower := strings.ToLower(strings.TrimSpace(s))
		return lower == "true" || lower == "1" || lower == "up" || lower == "online" || lower == "ok"
	default:
		return false
	}
}

func parseStatus(value string) models.EndpointStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "online", "up":
		return models.StatusOnline
	case "offline", "down":
		return models.StatusOffline
	case "disabled", "inactive":
		return models.StatusDisabled
	case "warning":
		return models.StatusWarning
	case "degraded":
		return models.StatusDegraded
	case "critical":
		return models.StatusCritical
	default:
		return models.StatusUnknown
	}
}

func endpointName(name string, id int) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fmt.Sprintf("Endpoint %d", id)
}

func orNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts
}
