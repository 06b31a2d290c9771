package telemetry

import (
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// Shape identifies which of the three upstream payload layouts a snapshot
// carries. It is resolved exactly once, by Resolve, and downstream code
// switches on the result instead of re-probing maps.
type Shape int

const (
	// ShapeAggregateOnly means only fleet totals are known.
	ShapeAggregateOnly Shape = iota
	// ShapeEndpoints means application-level endpoint objects are present.
	ShapeEndpoints
	// ShapeMonitors means raw protocol-level monitor records are present.
	ShapeMonitors
)

func (s Shape) String() string {
	switch s {
	case ShapeEndpoints:
		return "endpoints"
	case ShapeMonitors:
		return "monitors"
	default:
		return "aggregate"
	}
}

// Snapshot is the decoded infrastructure overview handed to the normalizer.
// At most one of Endpoints/Monitors is expected to be populated; when both
// are absent the snapshot is aggregate-only.
type Snapshot struct {
	Aggregate        models.AggregateCounts
	ActiveAlerts     int
	UptimePercentage float64
	HealthStatus     string
	Endpoints        []EndpointPayload
	Monitors         []MonitorPayload
	Alerts           []models.AlertRecord
	Timestamp        time.Time
}

// EndpointPayload is shape (a): an endpoint object whose Data map carries
// application-level metric names (cpu_usage, memory_usage, response_time).
type EndpointPayload struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

// MonitorPayload is shape (b): a raw monitor record carrying protocol-level
// counter names and status/active flags.
type MonitorPayload struct {
	ID      int            `json:"id"`
	Name    string         `json:"name"`
	Metrics map[string]any `json:"metrics"`
	Status  any            `json:"status"`
	Active  *bool          `json:"active,omitempty"`
}

// Protocol-level counter keys accepted on monitor records.
const (
	keyProcessorLoad = "hrProcessorLoad"
	keyMemTotal      = "memTotalReal"
	keyMemAvail      = "memAvailReal"
	keyPingRTT       = "pingResponseTime"
	keyRTT           = "rtt"
)

// Resolve classifies the snapshot into its closed variant.
func Resolve(s Snapshot) Shape {
	if len(s.Endpoints) > 0 {
		return ShapeEndpoints
	}
	if len(s.Monitors) > 0 {
		return ShapeMonitors
	}
	return ShapeAggregateOnly
}
