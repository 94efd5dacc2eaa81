package store

import (
	"context"

	"github.com/pharmaforge/forge/pkg/model"
)

// ExportBundle is everything the audit packet exporter needs for one run,
// loaded in a single pass.
type ExportBundle struct {
	Evidence     model.Evidence
	Run          model.WorkflowRun
	Findings     []model.Finding
	Plan         *model.ActionPlan
	AuditEntries []model.AuditEntry
}

// ReadExportBundle assembles the export inputs for a run. Lookup failures
// surface as the store's sentinel errors so the exporter can map them to
// its own taxonomy. A missing action plan is not an error here; the
// exporter decides whether the bundle is exportable.
func (s *Store) ReadExportBundle(ctx context.Context, tenantID, runID string) (ExportBundle, error) {
	var bundle ExportBundle

	run, err := s.GetWorkflowRun(ctx, tenantID, runID)
	if err != nil {
		return bundle, err
	}
	bundle.Run = run

	ev, err := s.GetEvidence(ctx, tenantID, run.EvidenceID)
	if err != nil {
		return bundle, err
	}
	bundle.Evidence = ev

	findings, err := s.FindingsForRun(ctx, runID)
	if err != nil {
		return bundle, err
	}
	bundle.Findings = findings

	plan, err := s.ActionPlanForRun(ctx, runID)
	switch err {
	case nil:
		bundle.Plan = &plan
	case ErrPlanNotFound:
		// leave nil
	default:
		return bundle, err
	}

	entries, err := s.ListAuditEntriesForEntities(ctx, tenantID, []string{run.EvidenceID, runID})
	if err != nil {
		return bundle, err
	}
	bundle.AuditEntries = entries

	return bundle, nil
}
