// Package model defines the canonical entities shared by the watchtower feed
// ingestion engine and the golden workflow pipeline: feed items, sync status
// telemetry, vendors, evidence, workflow runs and their artifacts.
//
// Absence is modeled explicitly (nil pointers / empty strings). The literal
// "Unknown" is never substituted for a missing vendor, status, or title.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Category classifies a feed item by the kind of regulatory event it records.
type Category string

const (
	CategoryRecall        Category = "recall"
	CategoryShortage      Category = "shortage"
	CategoryWarningLetter Category = "warning_letter"
)

// Valid reports whether c is one of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryRecall, CategoryShortage, CategoryWarningLetter:
		return true
	}
	return false
}

// EvidenceStatus tracks the external ingestion pipeline's progress on a
// document. Only processed evidence is eligible as workflow input.
type EvidenceStatus string

const (
	EvidencePending    EvidenceStatus = "pending"
	EvidenceProcessing EvidenceStatus = "processing"
	EvidenceProcessed  EvidenceStatus = "processed"
	EvidenceFailed     EvidenceStatus = "failed"
)

// RunStatus is the workflow run state machine:
// pending -> running -> (success | failed). Terminal states are immutable.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether s is a final run state.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// Severity ranks a finding or action priority. Serialized uppercase.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// RiskLevel is the derived band of a vendor's 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DeriveRiskLevel maps a 0-100 risk score to its band.
func DeriveRiskLevel(score int) RiskLevel {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// FeedItem is one normalized record ingested from an external regulatory
// feed. Append-only; unique by (Source, ExternalID).
type FeedItem struct {
	Source      string          `json:"source"`
	ExternalID  string          `json:"external_id"`
	Title       string          `json:"title"`
	URL         *string         `json:"url,omitempty"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Summary     *string         `json:"summary,omitempty"`
	Category    Category        `json:"category"`
	VendorName  *string         `json:"vendor_name,omitempty"`
	Status      *string         `json:"status,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
	IngestedAt  time.Time       `json:"ingested_at"`
}

var (
	// ErrMissingExternalID rejects a feed item with no stable identity.
	ErrMissingExternalID = errors.New("feed item: external_id is required")
	// ErrMissingSource rejects a feed item with no source attribution.
	ErrMissingSource = errors.New("feed item: source is required")
)

// Validate checks the structural invariants a feed item must satisfy before
// it may be persisted. Source registry membership is enforced by the sync
// engine, which is the only component that resolves sources to adapters.
func (f *FeedItem) Validate() error {
	if f.Source == "" {
		return ErrMissingSource
	}
	if f.ExternalID == "" {
		return ErrMissingExternalID
	}
	if f.Title == "" {
		return fmt.Errorf("feed item %s/%s: title is required", f.Source, f.ExternalID)
	}
	if !f.Category.Valid() {
		return fmt.Errorf("feed item %s/%s: invalid category %q", f.Source, f.ExternalID, f.Category)
	}
	return nil
}

// SyncStatus is the per-source telemetry row, upserted once per sync run.
// It is global (not tenant-scoped) and last-writer-wins.
type SyncStatus struct {
	Source           string     `json:"source"`
	LastRunAt        time.Time  `json:"last_run_at"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`
	LastErrorMessage *string    `json:"last_error_message,omitempty"`
	LastHTTPStatus   *int       `json:"last_http_status,omitempty"`
	ItemsFetched     int        `json:"items_fetched"`
	ItemsSaved       int        `json:"items_saved"`
}

// Vendor is a tenant-scoped supplier record. RiskLevel is a derived cache of
// RiskScore and must be recomputed whenever the score changes.
type Vendor struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	Country   string    `json:"country,omitempty"`
	RiskScore int       `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
}

// Evidence is an uploaded document whose text has been extracted by the
// external ingestion pipeline. The core only consumes it.
type Evidence struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Filename      string         `json:"filename"`
	ContentHash   string         `json:"content_hash"`
	ExtractedText string         `json:"extracted_text"`
	Status        EvidenceStatus `json:"status"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// WorkflowRun is the atomic execution of findings + correlation + action
// plan for one piece of evidence.
type WorkflowRun struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	EvidenceID        string     `json:"evidence_id"`
	Status            RunStatus  `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	FindingsCount     int        `json:"findings_count"`
	CorrelationsCount int        `json:"correlations_count"`
	ActionsCount      int        `json:"actions_count"`
}

// Finding is a structured compliance observation extracted from evidence
// text, with regulatory citations. Child of a workflow run.
type Finding struct {
	ID          string   `json:"id"`
	RunID       string   `json:"run_id"`
	EvidenceID  string   `json:"evidence_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	CFRRefs     []string `json:"cfr_refs"`
	Citations   []string `json:"citations"`
	Entities    []string `json:"entities,omitempty"`
}

// Action is one owner/deadline-bearing recommendation within a plan.
type Action struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Severity `json:"priority"`
	Owner       string   `json:"owner"`
	Deadline    string   `json:"deadline"`
}

// ActionPlan is the single plan attached to a successful workflow run.
// CorrelationSnapshot is always non-empty on a persisted plan.
type ActionPlan struct {
	ID                  string          `json:"id"`
	RunID               string          `json:"run_id"`
	EvidenceID          string          `json:"evidence_id"`
	Rationale           string          `json:"rationale"`
	Actions             []Action        `json:"actions"`
	Owners              []string        `json:"owners"`
	Deadlines           []string        `json:"deadlines"`
	CorrelationSnapshot json.RawMessage `json:"correlation_snapshot"`
}

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	ActorID       *string        `json:"actor_id,omitempty"`
	Action        string         `json:"action"`
	EntityType    *string        `json:"entity_type,omitempty"`
	EntityID      *string        `json:"entity_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	SourceAddress *string        `json:"source_address,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
