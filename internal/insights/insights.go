// Package insights derives rule-based observations from an infrastructure
// overview snapshot. These complement the RAG pipeline: they need no
// generation call and are cheap enough to compute on every refresh.
package insights

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/infrawatch/ai-agent/internal/infrawatch"
)

// Severity levels for insights
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
	SeveritySuccess  = "success"
)

// Insight is one automatic observation about the infrastructure
type Insight struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Severity       string    `json:"severity"`
	Confidence     float64   `json:"confidence"`
	Recommendation string    `json:"recommendation"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromOverview generates insights from an overview snapshot.
func FromOverview(o infrawatch.Overview) []Insight {
	var out []Insight

	if o.ActiveAlerts > 0 {
		severity := SeverityWarning
		if o.ActiveAlerts >= 5 {
			severity = SeverityCritical
		}
		out = append(out, newInsight(
			fmt.Sprintf("%d active alerts detected", o.ActiveAlerts),
			fmt.Sprintf("The system has %d active alerts requiring attention", o.ActiveAlerts),
			severity, 95,
			"Review and resolve active alerts by priority",
		))
	}

	if o.UptimePercentage > 0 && o.UptimePercentage < 99.0 {
		severity := SeverityWarning
		if o.UptimePercentage < 95.0 {
			severity = SeverityCritical
		}
		out = append(out, newInsight(
			"Uptime below target",
			fmt.Sprintf("Current availability of %.1f%% is below the 99%% target", o.UptimePercentage),
			severity, 88,
			"Investigate the availability gap and harden the affected services",
		))
	}

	if o.OfflineEndpoints > 0 {
		severity := SeverityWarning
		if o.TotalEndpoints > 0 && float64(o.OfflineEndpoints) > float64(o.TotalEndpoints)*0.2 {
			severity = SeverityCritical
		}
		out = append(out, newInsight(
			fmt.Sprintf("%d endpoints offline", o.OfflineEndpoints),
			fmt.Sprintf("%d of %d endpoints are offline", o.OfflineEndpoints, o.TotalEndpoints),
			severity, 90,
			"Check connectivity and status of the offline endpoints",
		))
	}

	if o.TotalEndpoints > 20 {
		out = append(out, newInsight(
			"Growing infrastructure",
			fmt.Sprintf("Monitoring %d endpoints; consider scale optimizations", o.TotalEndpoints),
			SeverityInfo, 75,
			"Evaluate automation and centralized management tooling",
		))
	}

	if o.ActiveAlerts == 0 && o.UptimePercentage >= 99.0 && o.OfflineEndpoints == 0 {
		out = append(out, newInsight(
			"System operating normally",
			"All primary indicators are within expected parameters",
			SeveritySuccess, 90,
			"Keep monitoring routines and backups current",
		))
	}

	return out
}

func newInsight(title, description, severity string, confidence float64, recommendation string) Insight {
	return Insight{
		ID:             uuid.New().String(),
		Title:          title,
		Description:    description,
		Severity:       severity,
		Confidence:     confidence,
		Recommendation: recommendation,
		CreatedAt:      time.Now(),
	}
}
