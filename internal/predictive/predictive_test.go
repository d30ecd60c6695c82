package predictive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrawatch/ai-agent/internal/infrawatch"
)

func sample(endpointID int, name, status string, metrics map[string]string) infrawatch.MetricSample {
	return infrawatch.MetricSample{
		EndpointID:   endpointID,
		EndpointName: name,
		Timestamp:    time.Now(),
		Status:       status,
		Metrics:      metrics,
	}
}

func byMetric(alerts []Alert) map[string]Alert {
	out := make(map[string]Alert, len(alerts))
	for _, a := range alerts {
		out[a.Metric] = a
	}
	return out
}

func TestAnalyzeHighCPU(t *testing.T) {
	out := Analyze([]infrawatch.MetricSample{
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "92"}),
	}, nil, DefaultConfig())

	require.Len(t, out, 1)
	a := out[0]
	assert.Equal(t, "cpu_usage", a.Metric)
	assert.Equal(t, "node-1", a.Endpoint)
	// 70 + (92-80)*2 = 94
	assert.InDelta(t, 94, a.Probability, 1e-9)
	assert.Equal(t, "2-4 hours", a.EstimatedTime)
	assert.NotEmpty(t, a.SuggestedActions)
	assert.NotEmpty(t, a.ID)
}

func TestAnalyzeCPUProbabilityCap(t *testing.T) {
	out := Analyze([]infrawatch.MetricSample{
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "100"}),
	}, nil, DefaultConfig())

	require.Len(t, out, 1)
	assert.InDelta(t, 95, out[0].Probability, 1e-9)
}

func TestAnalyzeMemoryFromTotals(t *testing.T) {
	// 16 GB total, 1 GB available: 93.75% used
	out := Analyze([]infrawatch.MetricSample{
		sample(2, "node-2", "online", map[string]string{
			"memTotalReal": "16384",
			"memAvailReal": "1024",
		}),
	}, nil, DefaultConfig())

	require.Len(t, out, 1)
	a := out[0]
	assert.Equal(t, "memory_usage", a.Metric)
	assert.Contains(t, a.PredictedIssue, "93.8%")
	assert.Equal(t, "4-8 hours", a.EstimatedTime)
}

func TestAnalyzeAvailabilityStatuses(t *testing.T) {
	degraded := Analyze([]infrawatch.MetricSample{
		sample(1, "node-1", "degraded", nil),
	}, nil, DefaultConfig())
	require.Len(t, degraded, 1)
	assert.InDelta(t, 75, degraded[0].Probability, 1e-9)

	critical := Analyze([]infrawatch.MetricSample{
		sample(1, "node-1", "critical", nil),
	}, nil, DefaultConfig())
	require.Len(t, critical, 1)
	assert.InDelta(t, 90, critical[0].Probability, 1e-9)
	assert.Equal(t, "30 minutes - 2 hours", critical[0].EstimatedTime)
}

func TestAnalyzeUpwardTrendBelowThreshold(t *testing.T) {
	// 40 -> 50 -> 60: velocity 10/sample, projected past 80 within a day
	samples := []infrawatch.MetricSample{
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "40"}),
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "50"}),
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "60"}),
	}
	out := Analyze(samples, nil, DefaultConfig())

	require.Len(t, out, 1)
	assert.Equal(t, "cpu_usage", out[0].Metric)
	assert.Contains(t, out[0].PredictedIssue, "trending")

	// A flat series at the same level predicts nothing
	flat := []infrawatch.MetricSample{
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "60"}),
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "60"}),
	}
	assert.Empty(t, Analyze(flat, nil, DefaultConfig()))
}

func TestAnalyzeAlertPattern(t *testing.T) {
	alerts := []infrawatch.Alert{
		{ID: 1, EndpointID: 7, Severity: "warning", Title: "a"},
		{ID: 2, EndpointID: 7, Severity: "warning", Title: "b"},
		{ID: 3, EndpointID: 7, Severity: "critical", Title: "c"},
		{ID: 4, EndpointID: 3, Severity: "warning", Title: "d"},
	}
	samples := []infrawatch.MetricSample{
		sample(7, "node-7", "online", nil),
	}

	out := Analyze(samples, alerts, DefaultConfig())
	require.Len(t, out, 1)
	a := out[0]
	assert.Equal(t, "alert_frequency", a.Metric)
	assert.Equal(t, "node-7", a.Endpoint)
	assert.Contains(t, a.PredictedIssue, "3 alerts")
	assert.InDelta(t, 80, a.Probability, 1e-9)
}

func TestAnalyzeConfidenceThresholdFilters(t *testing.T) {
	samples := []infrawatch.MetricSample{
		// 60 + (75-70) = 65, below the default 70 threshold
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "75"}),
	}
	assert.Empty(t, Analyze(samples, nil, DefaultConfig()))

	out := Analyze(samples, nil, Config{ConfidenceThreshold: 60, MaxAlerts: 10})
	require.Len(t, out, 1)
	assert.InDelta(t, 65, out[0].Probability, 1e-9)
}

func TestAnalyzeSortedAndCapped(t *testing.T) {
	samples := []infrawatch.MetricSample{
		sample(1, "node-1", "online", map[string]string{"hrProcessorLoad": "85"}),  // 80
		sample(2, "node-2", "critical", nil),                                      // 90
		sample(3, "node-3", "online", map[string]string{"hrProcessorLoad": "95"}), // 95 capped
	}
	out := Analyze(samples, nil, Config{ConfidenceThreshold: 70, MaxAlerts: 2})

	require.Len(t, out, 2)
	assert.Equal(t, "node-3", out[0].Endpoint)
	assert.Equal(t, "node-2", out[1].Endpoint)
}

func TestTrendVelocity(t *testing.T) {
	assert.Zero(t, TrendVelocity(nil))
	assert.Zero(t, TrendVelocity([]float64{50}))
	assert.InDelta(t, 10, TrendVelocity([]float64{40, 50, 60}), 1e-9)
	assert.InDelta(t, -5, TrendVelocity([]float64{60, 55, 50}), 1e-9)
}

func TestPredictValueClamped(t *testing.T) {
	assert.InDelta(t, 80, PredictValue(50, 2.5, 12), 1e-9)
	assert.InDelta(t, 100, PredictValue(90, 5, 12), 1e-9)
	assert.InDelta(t, 0, PredictValue(10, -5, 12), 1e-9)
}

func TestAnalyzeIgnoresMalformedMetrics(t *testing.T) {
	out := Analyze([]infrawatch.MetricSample{
		sample(1, "node-1", "online", map[string]string{
			"hrProcessorLoad": "n/a",
			"memTotalReal":    "unknown",
			"memAvailReal":    "1024",
		}),
	}, nil, DefaultConfig())
	assert.Empty(t, out)
}
