package watchtower

import (
	"context"
	"time"
)

// SourceHealth is the per-source slice of the health report.
type SourceHealth struct {
	Source           string     `json:"source"`
	Name             string     `json:"name"`
	Required         bool       `json:"required"`
	Healthy          bool       `json:"healthy"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`
	LastErrorMessage *string    `json:"last_error_message,omitempty"`
}

// EntityCounts summarizes the data inventory.
type EntityCounts struct {
	FeedItems    int `json:"feed_items"`
	ActiveAlerts int `json:"active_alerts"`
	Vendors      int `json:"vendors"`
	Evidence     int `json:"evidence"`
}

// HealthReport is the engine's externally visible health surface.
type HealthReport struct {
	OverallStatus string         `json:"overall_status"` // healthy, degraded, down
	Sources       []SourceHealth `json:"sources"`
	Counts        EntityCounts   `json:"counts"`
	Timestamp     time.Time      `json:"timestamp"`
}

// GetHealth reports per-source status and entity counts. Overall status is
// down iff every required source is failing, degraded iff any required
// source is failing, healthy otherwise. A source that has never synced
// counts as healthy until proven otherwise.
func (e *Engine) GetHealth(ctx context.Context) (HealthReport, error) {
	report := HealthReport{Timestamp: time.Now().UTC()}

	requiredTotal := 0
	requiredFailing := 0
	for _, p := range e.profiles {
		if !p.Enabled {
			continue
		}
		sh := SourceHealth{Source: p.ID, Name: p.Name, Required: p.Required, Healthy: true}

		status, err := e.store.GetSyncStatus(ctx, p.ID)
		if err != nil {
			return HealthReport{}, err
		}
		if status != nil {
			sh.LastSuccessAt = status.LastSuccessAt
			sh.LastErrorAt = status.LastErrorAt
			sh.LastErrorMessage = status.LastErrorMessage
			sh.Healthy = sourceHealthy(status.LastSuccessAt, status.LastErrorAt)
		}

		if p.Required {
			requiredTotal++
			if !sh.Healthy {
				requiredFailing++
			}
		}
		report.Sources = append(report.Sources, sh)
	}

	switch {
	case requiredTotal > 0 && requiredFailing == requiredTotal:
		report.OverallStatus = "down"
	case requiredFailing > 0:
		report.OverallStatus = "degraded"
	default:
		report.OverallStatus = "healthy"
	}

	var err error
	if report.Counts.FeedItems, err = e.store.CountFeedItems(ctx); err != nil {
		return HealthReport{}, err
	}
	if report.Counts.ActiveAlerts, err = e.store.CountActiveAlerts(ctx); err != nil {
		return HealthReport{}, err
	}
	if report.Counts.Vendors, err = e.store.CountVendors(ctx); err != nil {
		return HealthReport{}, err
	}
	if report.Counts.Evidence, err = e.store.CountEvidence(ctx); err != nil {
		return HealthReport{}, err
	}
	return report, nil
}

// sourceHealthy: the most recent outcome wins; an error newer than the last
// success marks the source failing.
func sourceHealthy(success, errAt *time.Time) bool {
	if errAt == nil {
		return true
	}
	if success == nil {
		return false
	}
	return success.After(*errAt)
}
