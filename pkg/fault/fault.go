// Package fault defines the stable error taxonomy for the core. Refusals
// carry a machine-readable Kind plus the context a caller needs to act
// (evidence id, run id, a suggested next step). Kinds are a closed set;
// callers may switch on them and the identifiers never change.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable identifier of a failure class.
type Kind string

const (
	EvidenceNotFound     Kind = "evidence_not_found"
	EvidenceNotProcessed Kind = "evidence_not_processed"
	EvidencePending      Kind = "evidence_pending"
	EvidenceProcessing   Kind = "evidence_processing"
	EvidenceFailed       Kind = "evidence_failed"
	EvidenceEmpty        Kind = "evidence_empty"

	NoWorkflowRun            Kind = "no_workflow_run"
	WorkflowRunNotFound      Kind = "workflow_run_not_found"
	WorkflowRunNotSuccessful Kind = "workflow_run_not_successful"

	FindingsMissing    Kind = "findings_missing"
	ActionPlanMissing  Kind = "action_plan_missing"
	CorrelationMissing Kind = "correlation_missing"

	ProviderHTTPError        Kind = "provider_http_error"
	ProviderParseError       Kind = "provider_parse_error"
	ProviderAllSourcesFailed Kind = "provider_all_sources_failed"

	DBUnavailable         Kind = "db_unavailable"
	DBConstraintViolation Kind = "db_constraint_violation"
	CacheUnavailable      Kind = "cache_unavailable"

	Cancelled Kind = "cancelled"
	Timeout   Kind = "timeout"
	Internal  Kind = "internal_error"
)

// Fault is a structured refusal. It implements error and marshals to the
// wire shape {error, message, evidence_id?, run_id?, action_required?}.
type Fault struct {
	Kind           Kind   `json:"error"`
	Message        string `json:"message"`
	EvidenceID     string `json:"evidence_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	ActionRequired string `json:"action_required,omitempty"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// New creates a Fault of the given kind.
func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithEvidence attaches the evidence id the refusal is about.
func (f *Fault) WithEvidence(id string) *Fault {
	f.EvidenceID = id
	return f
}

// WithRun attaches the workflow run id the refusal is about.
func (f *Fault) WithRun(id string) *Fault {
	f.RunID = id
	return f
}

// WithAction attaches a suggested next step for the caller.
func (f *Fault) WithAction(action string) *Fault {
	f.ActionRequired = action
	return f
}

// KindOf classifies an arbitrary error. Faults report their own kind;
// context errors map to cancelled/timeout; everything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}
	return Internal
}

// From wraps an arbitrary error as a Fault, preserving an existing Fault
// unchanged.
func From(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: KindOf(err), Message: err.Error()}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
