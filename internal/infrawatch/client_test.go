package infrawatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOverview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/system/overview", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Overview{
			TotalEndpoints:   10,
			OnlineEndpoints:  9,
			OfflineEndpoints: 1,
			ActiveAlerts:     2,
			UptimePercentage: 99.5,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIToken: "secret-token"}, nil)
	o, err := c.GetOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, o.TotalEndpoints)
	assert.Equal(t, 2, o.ActiveAlerts)
	assert.InDelta(t, 99.5, o.UptimePercentage, 1e-9)
}

func TestGetAlertsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/alerts", r.URL.Path)
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]Alert{
			{ID: 1, EndpointID: 7, Severity: "critical", Title: "Disk full", Status: "active"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	alerts, err := c.GetAlerts(context.Background(), "active", 50)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Disk full", alerts[0].Title)
}

func TestGetOverviewServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.GetOverview(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestKnowledgeDocuments(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 2, 0, 0, time.UTC)
	samples := []MetricSample{
		{
			EndpointID: 7, EndpointName: "node-7", Timestamp: now.Add(-time.Minute),
			Status:  "online",
			Metrics: map[string]string{"hrProcessorLoad": "35"},
		},
		{
			EndpointID: 7, EndpointName: "node-7", Timestamp: now,
			Status:  "online",
			Metrics: map[string]string{"hrProcessorLoad": "42", "hrStorageUsed": "92%"},
		},
		{
			EndpointID: 3, EndpointName: "node-3", Timestamp: now,
			Status:  "offline",
			Metrics: map[string]string{"sysUpTime": "0"},
		},
	}
	alerts := []Alert{
		{ID: 1, EndpointID: 7, Severity: "critical", Title: "Disk almost full", Description: "Storage at 92%"},
		{ID: 2, EndpointID: 99, Severity: "warning", Title: "Unrelated"},
	}

	docs := KnowledgeDocuments(samples, alerts)
	require.Len(t, docs, 2)

	// Sorted by endpoint ID, with stable IDs for refresh supersession
	assert.Equal(t, "endpoint-3", docs[0].ID)
	assert.Equal(t, "endpoint-7", docs[1].ID)
	assert.Equal(t, "infrastructure_data", docs[1].Category)
	assert.Equal(t, "node-7", docs[1].Source)

	text := docs[1].Text
	assert.Contains(t, text, "Endpoint: node-7")
	// Latest sample wins
	assert.Contains(t, text, "- CPU Load: 42")
	assert.NotContains(t, text, "- CPU Load: 35")
	assert.Contains(t, text, "- Storage Used: 92%")
	assert.Contains(t, text, "- [CRITICAL] Disk almost full: Storage at 92%")
	// Alerts for other endpoints stay out
	assert.NotContains(t, text, "Unrelated")

	// Offline endpoint renders without alerts
	assert.Contains(t, docs[0].Text, "Status: offline")
	assert.NotContains(t, docs[0].Text, "ALERTS:")
}

func TestKnowledgeDocumentsEmpty(t *testing.T) {
	assert.Empty(t, KnowledgeDocuments(nil, nil))
}
