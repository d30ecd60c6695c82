// Package predictive derives forward-looking alerts from recent telemetry:
// threshold- and trend-based projections per endpoint, plus alert-frequency
// patterns. Like insights, this runs rule-based on every refresh with no
// generation call.
package predictive

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/infrawatch/ai-agent/internal/infrawatch"
)

// Config controls which predictions surface
type Config struct {
	// ConfidenceThreshold drops predictions below this probability (0-100)
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// MaxAlerts caps the returned predictions, highest probability first
	MaxAlerts int `mapstructure:"max_alerts"`
}

// DefaultConfig returns the analysis defaults
func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 70, MaxAlerts: 10}
}

// Alert is one prediction about an endpoint's near future
type Alert struct {
	ID               string    `json:"id"`
	Endpoint         string    `json:"endpoint"`
	Metric           string    `json:"metric"`
	PredictedIssue   string    `json:"predicted_issue"`
	Probability      float64   `json:"probability"`
	EstimatedTime    string    `json:"estimated_time"`
	SuggestedActions []string  `json:"suggested_actions"`
	CreatedAt        time.Time `json:"created_at"`
}

// Analyze inspects per-endpoint telemetry history and active alerts and
// returns predictions at or above the confidence threshold, highest
// probability first.
func Analyze(samples []infrawatch.MetricSample, alerts []infrawatch.Alert, cfg Config) []Alert {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 70
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 10
	}

	var out []Alert
	for _, ep := range groupByEndpoint(samples) {
		out = append(out, analyzeEndpoint(ep)...)
	}
	out = append(out, alertPatterns(alerts, samples)...)

	filtered := out[:0]
	for _, a := range out {
		if a.Probability >= cfg.ConfidenceThreshold {
			filtered = append(filtered, a)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Probability > filtered[j].Probability
	})
	if len(filtered) > cfg.MaxAlerts {
		filtered = filtered[:cfg.MaxAlerts]
	}
	return filtered
}

type endpointHistory struct {
	id      int
	name    string
	samples []infrawatch.MetricSample
}

func groupByEndpoint(samples []infrawatch.MetricSample) []endpointHistory {
	byID := make(map[int]*endpointHistory)
	for _, s := range samples {
		h, ok := byID[s.EndpointID]
		if !ok {
			h = &endpointHistory{id: s.EndpointID, name: s.EndpointName}
			byID[s.EndpointID] = h
		}
		h.samples = append(h.samples, s)
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]endpointHistory, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out
}

func analyzeEndpoint(ep endpointHistory) []Alert {
	var out []Alert
	if len(ep.samples) == 0 {
		return out
	}
	latest := ep.samples[len(ep.samples)-1]

	if a, ok := analyzeCPU(ep); ok {
		out = append(out, a)
	}
	if a, ok := analyzeMemory(ep.name, latest); ok {
		out = append(out, a)
	}
	if a, ok := analyzeAvailability(ep.name, latest); ok {
		out = append(out, a)
	}
	return out
}

func analyzeCPU(ep endpointHistory) (Alert, bool) {
	history := metricSeries(ep.samples, "hrProcessorLoad")
	if len(history) == 0 {
		return Alert{}, false
	}
	cpu := history[len(history)-1]

	switch {
	case cpu > 80:
		est := "6-12 hours"
		if cpu > 90 {
			est = "2-4 hours"
		}
		return newAlert(ep.name, "cpu_usage",
			fmt.Sprintf("High CPU load (%.1f%%) may cause degradation", cpu),
			minF(95, 70+(cpu-80)*2), est,
			"Check running processes",
			"Consider application optimization",
			"Watch the trend over the next hours",
		), true
	case cpu > 70:
		return newAlert(ep.name, "cpu_usage",
			fmt.Sprintf("Rising CPU load trend (%.1f%%)", cpu),
			60+(cpu-70), "12-24 hours",
			"Monitor critical applications",
			"Prepare an optimization plan",
		), true
	}

	// Below the static thresholds a steep upward trend still predicts trouble
	if v := TrendVelocity(history); v > 0 {
		if predicted := PredictValue(cpu, v, 24); predicted > 80 {
			return newAlert(ep.name, "cpu_usage",
				fmt.Sprintf("CPU load trending toward %.0f%% within a day (now %.1f%%)", predicted, cpu),
				70, "12-24 hours",
				"Monitor critical applications",
				"Prepare an optimization plan",
			), true
		}
	}
	return Alert{}, false
}

func analyzeMemory(endpoint string, latest infrawatch.MetricSample) (Alert, bool) {
	used, ok := memoryUsagePercent(latest)
	if !ok {
		return Alert{}, false
	}

	switch {
	case used > 85:
		est := "4-8 hours"
		if used > 95 {
			est = "1-3 hours"
		}
		return newAlert(endpoint, "memory_usage",
			fmt.Sprintf("Memory exhaustion approaching (%.1f%%)", used),
			minF(90, 75+(used-85)*2), est,
			"Check for memory leaks",
			"Restart non-critical services",
			"Consider adding RAM",
		), true
	case used > 75:
		return newAlert(endpoint, "memory_usage",
			fmt.Sprintf("Growing memory usage (%.1f%%)", used),
			65+(used-75), "8-16 hours",
			"Watch memory-heavy applications",
			"Prepare a cleanup strategy",
		), true
	}
	return Alert{}, false
}

func analyzeAvailability(endpoint string, latest infrawatch.MetricSample) (Alert, bool) {
	switch strings.ToLower(latest.Status) {
	case "warning", "degraded":
		return newAlert(endpoint, "availability",
			"Degraded status may lead to an outage",
			75, "2-6 hours",
			"Investigate the cause of the degradation",
			"Prepare a contingency plan",
			"Monitor dependent services",
		), true
	case "critical":
		return newAlert(endpoint, "availability",
			"Critical status, imminent failure detected",
			90, "30 minutes - 2 hours",
			"Immediate action required",
			"Activate emergency procedures",
			"Notify the support team",
		), true
	}
	return Alert{}, false
}

// alertPatterns flags endpoints accumulating several active alerts, a signal
// of a systemic problem rather than isolated incidents.
func alertPatterns(alerts []infrawatch.Alert, samples []infrawatch.MetricSample) []Alert {
	names := make(map[int]string)
	for _, s := range samples {
		names[s.EndpointID] = s.EndpointName
	}

	counts := make(map[int]int)
	for _, a := range alerts {
		counts[a.EndpointID]++
	}
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []Alert
	for _, id := range ids {
		n := counts[id]
		if n < 3 {
			continue
		}
		name := names[id]
		if name == "" {
			name = fmt.Sprintf("endpoint-%d", id)
		}
		out = append(out, newAlert(name, "alert_frequency",
			fmt.Sprintf("Repeated alert pattern detected (%d alerts)", n),
			80, "1-4 hours",
			"Investigate the root cause of the alerts",
			"Check for a systemic problem",
			"Consider preventive maintenance",
		))
	}
	return out
}

// TrendVelocity returns the mean change between successive values.
func TrendVelocity(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(values); i++ {
		sum += values[i] - values[i-1]
	}
	return sum / float64(len(values)-1)
}

// PredictValue projects a percentage metric linearly, clamped to [0,100].
func PredictValue(current, velocity float64, hoursAhead int) float64 {
	v := current + velocity*float64(hoursAhead)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// metricSeries extracts one numeric metric across an endpoint's samples, in
// sample order, skipping samples where it is missing or non-numeric.
func metricSeries(samples []infrawatch.MetricSample, key string) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if raw, ok := s.Metrics[key]; ok {
			if v, err := parsePercent(raw); err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}

func memoryUsagePercent(s infrawatch.MetricSample) (float64, bool) {
	total, err1 := parsePercent(s.Metrics["memTotalReal"])
	avail, err2 := parsePercent(s.Metrics["memAvailReal"])
	if err1 != nil || err2 != nil || total <= 0 {
		return 0, false
	}
	return (total - avail) / total * 100, true
}

func parsePercent(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func newAlert(endpoint, metric, issue string, probability float64, estimated string, actions ...string) Alert {
	return Alert{
		ID:               uuid.New().String(),
		Endpoint:         endpoint,
		Metric:           metric,
		PredictedIssue:   issue,
		Probability:      probability,
		EstimatedTime:    estimated,
		SuggestedActions: actions,
		CreatedAt:        time.Now(),
	}
}
