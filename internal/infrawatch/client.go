// Package infrawatch pulls telemetry from the InfraWatch monitoring backend
// and renders it into ingestible knowledge documents.
package infrawatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/agent"
)

// Config controls the backend client
type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIToken string        `mapstructure:"api_token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Overview is the backend's infrastructure summary
type Overview struct {
	TotalEndpoints   int     `json:"total_endpoints"`
	OnlineEndpoints  int     `json:"online_endpoints"`
	OfflineEndpoints int     `json:"offline_endpoints"`
	ActiveAlerts     int     `json:"active_alerts"`
	UptimePercentage float64 `json:"uptime_percentage"`
}

// Alert is one backend alert
type Alert struct {
	ID          int    `json:"id"`
	EndpointID  int    `json:"id_endpoint"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// MetricSample is one telemetry sample for an endpoint
type MetricSample struct {
	EndpointID   int               `json:"endpoint_id"`
	EndpointName string            `json:"endpoint_name"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       string            `json:"status"`
	Metrics      map[string]string `json:"metrics"`
}

// Client talks to the InfraWatch REST API
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("infrawatch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("infrawatch: status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetOverview fetches the infrastructure summary.
func (c *Client) GetOverview(ctx context.Context) (Overview, error) {
	var o Overview
	err := c.get(ctx, "/api/system/overview", nil, &o)
	return o, err
}

// GetAlerts fetches alerts, optionally filtered by status.
func (c *Client) GetAlerts(ctx context.Context, status string, limit int) ([]Alert, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	var alerts []Alert
	err := c.get(ctx, "/api/alerts", params, &alerts)
	return alerts, err
}

// GetRecentMetrics fetches metric samples from the trailing window.
func (c *Client) GetRecentMetrics(ctx context.Context, hours int) ([]MetricSample, error) {
	params := url.Values{}
	params.Set("since", time.Now().Add(-time.Duration(hours)*time.Hour).Format(time.RFC3339))
	var samples []MetricSample
	err := c.get(ctx, "/api/metrics/recent", params, &samples)
	return samples, err
}

// KnowledgeDocuments groups recent metrics and alerts per endpoint and
// renders one knowledge document per endpoint, ready for ingestion. Document
// IDs are stable per endpoint so a refresh supersedes the previous snapshot.
func KnowledgeDocuments(samples []MetricSample, alerts []Alert) []agent.Document {
	type endpointData struct {
		name    string
		id      int
		samples []MetricSample
	}
	byEndpoint := make(map[int]*endpointData)
	for _, s := range samples {
		d, ok := byEndpoint[s.EndpointID]
		if !ok {
			d = &endpointData{name: s.EndpointName, id: s.EndpointID}
			byEndpoint[s.EndpointID] = d
		}
		d.samples = append(d.samples, s)
	}

	ids := make([]int, 0, len(byEndpoint))
	for id := range byEndpoint {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	docs := make([]agent.Document, 0, len(ids))
	now := time.Now()
	for _, id := range ids {
		d := byEndpoint[id]
		var related []Alert
		for _, a := range alerts {
			if a.EndpointID == id {
				related = append(related, a)
			}
		}
		docs = append(docs, agent.Document{
			ID:        fmt.Sprintf("endpoint-%d", id),
			Source:    d.name,
			Category:  "infrastructure_data",
			Timestamp: now,
			Text:      renderEndpointDocument(d.name, d.samples, related),
		})
	}
	return docs
}

// renderEndpointDocument follows the knowledge-base text shape the retriever
// was tuned for: endpoint header, metric lines, alert lines.
func renderEndpointDocument(name string, samples []MetricSample, alerts []Alert) string {
	var sb strings.Builder
	sb.WriteString("Endpoint: " + name + "\n")
	if len(samples) > 0 {
		latest := samples[len(samples)-1]
		sb.WriteString("Timestamp: " + latest.Timestamp.Format(time.RFC3339) + "\n")
		sb.WriteString("Status: " + latest.Status + "\n\nMETRICS:\n")
		keys := make([]string, 0, len(latest.Metrics))
		for k := range latest.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", metricLabel(k), latest.Metrics[k]))
		}
	}
	if len(alerts) > 0 {
		sb.WriteString("\nALERTS:\n")
		for _, a := range alerts {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", strings.ToUpper(a.Severity), a.Title, a.Description))
		}
	}
	return sb.String()
}

// metricLabel maps raw SNMP metric names to readable labels
func metricLabel(key string) string {
	switch key {
	case "hrProcessorLoad":
		return "CPU Load"
	case "memTotalReal":
		return "Total Memory"
	case "memAvailReal":
		return "Available Memory"
	case "hrStorageSize":
		return "Storage Size"
	case "hrStorageUsed":
		return "Storage Used"
	case "sysUpTime":
		return "System Uptime"
	default:
		return key
	}
}
