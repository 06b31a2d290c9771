package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/cache"
	"github.com/infrawatchstack/infrawatch-insight/internal/models"
	"github.com/infrawatchstack/infrawatch-insight/internal/telemetry"
)

const overviewCacheKey = "insight:overview:v1"

// InfraWatchClient wraps the monitoring backend's REST API. The overview
// call fans out to endpoints, monitors and alerts concurrently; a failing
// branch degrades that section of the snapshot instead of failing the call.
type InfraWatchClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewInfraWatchClient constructs a client for the configured backend. A nil
// cache provider falls back to the noop cache.
func NewInfraWatchClient(baseURL, token string, timeout time.Duration, provider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *InfraWatchClient {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &InfraWatchClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		cache:      provider,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// GetInfrastructureOverview assembles the current snapshot from three
// concurrent backend calls. Branches fail independently; only when every
// branch fails does the call return an error. Successful snapshots are
// cached briefly to absorb bursts of analysis requests.
func (c *InfraWatchClient) GetInfrastructureOverview(ctx context.Context) (telemetry.Snapshot, error) {
	if c == nil || c.baseURL == "" {
		return telemetry.Snapshot{}, fmt.Errorf("infrawatch client not configured")
	}

	if raw, err := c.cache.Get(ctx, overviewCacheKey); err == nil {
		var cached telemetry.Snapshot
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	var (
		wg        sync.WaitGroup
		endpoints []telemetry.EndpointPayload
		monitors  []telemetry.MonitorPayload
		alerts    []models.AlertRecord
		errEP     error
		errMon    error
		errAlert  error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		endpoints, errEP = c.fetchEndpoints(ctx)
	}()
	go func() {
		defer wg.Done()
		monitors, errMon = c.fetchMonitors(ctx)
	}()
	go func() {
		defer wg.Done()
		alerts, errAlert = c.GetAlerts(ctx, 50)
	}()
	wg.Wait()

	if errEP != nil {
		c.logger.Warn("endpoint fetch failed", slog.String("error", errEP.Error()))
	}
	if errMon != nil {
		c.logger.Warn("monitor fetch failed", slog.String("error", errMon.Error()))
	}
	if errAlert != nil {
		c.logger.Warn("alert fetch failed", slog.String("error", errAlert.Error()))
	}
	if errEP != nil && errMon != nil && errAlert != nil {
		return telemetry.Snapshot{}, fmt.Errorf("infrastructure overview unavailable: %w", errEP)
	}

	snapshot := telemetry.Snapshot{
		Endpoints:    endpoints,
		Monitors:     monitors,
		Alerts:       alerts,
		ActiveAlerts: len(alerts),
		Timestamp:    time.Now().UTC(),
	}
	snapshot.Aggregate = aggregateFromEndpoints(endpoints, monitors)
	snapshot.UptimePercentage = snapshot.Aggregate.UptimeRatio()
	snapshot.HealthStatus = healthStatusFor(snapshot.Aggregate)

	if raw, err := json.Marshal(snapshot); err == nil {
		if err := c.cache.Set(ctx, overviewCacheKey, raw, c.cacheTTL); err != nil {
			c.logger.Debug("overview cache write failed", slog.String("error", err.Error()))
		}
	}
	return snapshot, nil
}

// GetAlerts retrieves recent alert records, newest first.
func (c *InfraWatchClient) GetAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("infrawatch client not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	var response struct {
		Alerts []models.AlertRecord `json:"alerts"`
	}
	endpoint := c.resolvePath("/api/alerts") + "?limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("infrawatch alerts request failed: %w", err)
	}
	return response.Alerts, nil
}

// GetRecentMetrics retrieves per-endpoint metric samples for the window.
func (c *InfraWatchClient) GetRecentMetrics(ctx context.Context, timeRange string) ([]models.MetricSnapshot, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("infrawatch client not configured")
	}
	if timeRange == "" {
		timeRange = "24h"
	}

	var response struct {
		Metrics []models.MetricSnapshot `json:"metrics"`
	}
	endpoint := c.resolvePath("/api/metrics/recent") + "?range=" + url.QueryEscape(timeRange)
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("infrawatch metrics request failed: %w", err)
	}
	return response.Metrics, nil
}

func (c *InfraWatchClient) fetchEndpoints(ctx context.Context) ([]telemetry.EndpointPayload, error) {
	var response struct {
		Endpoints []telemetry.EndpointPayload `json:"endpoints"`
	}
	if err := c.getJSON(ctx, c.resolvePath("/api/endpoints"), &response); err != nil {
		return nil, fmt.Errorf("infrawatch endpoints request failed: %w", err)
	}
	return response.Endpoints, nil
}

func (c *InfraWatchClient) fetchMonitors(ctx context.Context) ([]telemetry.MonitorPayload, error) {
	var response struct {
		Monitors []telemetry.MonitorPayload `json:"monitors"`
	}
	if err := c.getJSON(ctx, c.resolvePath("/api/monitors"), &response); err != nil {
		return nil, fmt.Errorf("infrawatch monitors request failed: %w", err)
	}
	return response.Monitors, nil
}

func aggregateFromEndpoints(endpoints []telemetry.EndpointPayload, monitors []telemetry.MonitorPayload) models.AggregateCounts {
	counts := models.AggregateCounts{}
	for _, ep := range endpoints {
		counts.Total++
		if strings.EqualFold(ep.Status, string(models.StatusOnline)) {
			counts.Online++
		} else {
			counts.Offline++
		}
	}
	if counts.Total > 0 {
		return counts
	}
	for range monitors {
		counts.Total++
	}
	return counts
}

func healthStatusFor(counts models.AggregateCounts) string {
	if counts.Total == 0 {
		return "unknown"
	}
	switch uptime := counts.UptimeRatio(); {
	case uptime >= 90:
		return "healthy"
	case uptime >= 70:
		return "degraded"
	default:
		return "critical"
	}
}

func (c *InfraWatchClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *InfraWatchClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("infrawatch returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
