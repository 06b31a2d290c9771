package models

import "time"

// EndpointStatus enumerates the canonical endpoint health states.
type EndpointStatus string

const (
	StatusOnline   EndpointStatus = "online"
	StatusOffline  EndpointStatus = "offline"
	StatusDisabled EndpointStatus = "disabled"
	StatusWarning  EndpointStatus = "warning"
	StatusDegraded EndpointStatus = "degraded"
	StatusCritical EndpointStatus = "critical"
	StatusUnknown  EndpointStatus = "unknown"
)

// CanonicalEndpointMetric is the normalized, format-independent view of one
// endpoint's health indicators. Optional fields are pointers: absent
// upstream data stays absent instead of reading as zero. Instances are
// transient and recomputed on every analysis pass.
type CanonicalEndpointMetric struct {
	EndpointID     string         `json:"endpoint_id"`
	EndpointName   string         `json:"endpoint_name"`
	CPUUsage       *float64       `json:"cpu_usage,omitempty"`
	MemoryUsage    *float64       `json:"memory_usage,omitempty"`
	ResponseTimeMS *float64       `json:"response_time_ms,omitempty"`
	Status         EndpointStatus `json:"status"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// AggregateCounts carries fleet-level totals when per-endpoint detail is
// unavailable.
type AggregateCounts struct {
	Total   int `json:"total_endpoints"`
	Online  int `json:"online_endpoints"`
	Offline int `json:"offline_endpoints"`
}

// UptimeRatio returns the online percentage, zero when the fleet is empty.
func (a AggregateCounts) UptimeRatio() float64 {
	if a.Total <= 0 {
		return 0
	}
	return float64(a.Online) / float64(a.Total) * 100
}

// MetricSnapshot is one per-endpoint sample returned by the live provider.
type MetricSnapshot struct {
	EndpointID   int               `json:"endpoint_id"`
	EndpointName string            `json:"endpoint_name"`
	Metrics      map[string]string `json:"metrics"`
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
}

// MetricTrend summarizes the recent movement of one metric across the
// fleet: the latest observed value, its hourly rate of change, and a
// linear projection to the end of the analysis window.
type MetricTrend struct {
	Metric         string  `json:"metric"`
	Current        float64 `json:"current"`
	VelocityPerHr  float64 `json:"velocity_per_hour"`
	Projected      float64 `json:"projected"`
	Direction      string  `json:"direction"`
	Samples        int     `json:"samples"`
	ProjectedHours int     `json:"projected_hours"`
}
