package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmaforge/forge/pkg/audit"
	"github.com/pharmaforge/forge/pkg/auth"
	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
	"github.com/pharmaforge/forge/pkg/store"
)

// RunResult is the caller-facing outcome of a workflow run.
type RunResult struct {
	RunID             string          `json:"run_id"`
	EvidenceID        string          `json:"evidence_id"`
	Status            model.RunStatus `json:"status"`
	FindingsCount     int             `json:"findings_count"`
	CorrelationsCount int             `json:"correlations_count"`
	ActionsCount      int             `json:"actions_count"`
	Message           string          `json:"message,omitempty"`
}

// Orchestrator drives the golden workflow: findings, correlation, action
// plan, all attached to a single immutable run.
type Orchestrator struct {
	store   *store.Store
	audit   audit.Logger
	timeout time.Duration
	logger  *slog.Logger

	// now is injectable so correlation determinism is testable.
	now func() time.Time
}

// NewOrchestrator builds an Orchestrator. A nil audit logger disables audit
// capture (tests); timeout <= 0 uses the 120s default.
func NewOrchestrator(st *store.Store, auditLog audit.Logger, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Orchestrator{
		store:   st,
		audit:   auditLog,
		timeout: timeout,
		logger:  slog.Default().With("component", "risk.workflow"),
		now:     time.Now,
	}
}

// RunWorkflow executes the pipeline for one evidence document. Precondition
// failures return a fault and create no run row; failures past run creation
// mark the run failed and keep it for post-mortem.
func (o *Orchestrator) RunWorkflow(ctx context.Context, tenantID, evidenceID, actorID string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// Attribute the audit trail to the invoking actor.
	if actorID != "" {
		ctx = auth.WithRequestContext(ctx, auth.RequestContext{
			TenantID: tenantID,
			ActorID:  actorID,
		})
	}

	evidence, err := o.store.GetEvidence(ctx, tenantID, evidenceID)
	if err == store.ErrEvidenceNotFound {
		return RunResult{}, fault.New(fault.EvidenceNotFound, "evidence %s not found", evidenceID).
			WithEvidence(evidenceID)
	}
	if err != nil {
		return RunResult{}, fault.From(err)
	}

	if f := evidenceStatusFault(evidence); f != nil {
		return RunResult{}, f
	}

	run, err := o.store.CreateWorkflowRun(ctx, tenantID, evidenceID)
	if err != nil {
		return RunResult{}, fault.From(err)
	}

	result, err := o.executeRun(ctx, tenantID, actorID, evidence, run)
	if err != nil {
		msg := err.Error()
		if termErr := o.store.MarkRunTerminal(ctx, run.ID, model.RunFailed, &msg, 0, 0, 0); termErr != nil {
			o.logger.Error("failed to mark run failed", "run_id", run.ID, "error", termErr)
		}
		o.record(ctx, audit.EventMutation, audit.ActionWorkflowRunFailed,
			"workflow_run:"+run.ID, map[string]any{
				"evidence_id": evidenceID,
				"error":       msg,
			})
		o.logger.Error("workflow run failed", "run_id", run.ID, "evidence_id", evidenceID, "error", err)
		return RunResult{
				RunID:      run.ID,
				EvidenceID: evidenceID,
				Status:     model.RunFailed,
				Message:    msg,
			}, fault.New(fault.Internal, "workflow failed: %s", msg).
				WithEvidence(evidenceID).WithRun(run.ID)
	}
	return result, nil
}

// evidenceStatusFault maps each non-processed evidence state to its own
// refusal, checked before any run row exists.
func evidenceStatusFault(ev model.Evidence) *fault.Fault {
	switch ev.Status {
	case model.EvidencePending:
		return fault.New(fault.EvidencePending,
			"evidence %s is still pending processing", ev.ID).WithEvidence(ev.ID)
	case model.EvidenceProcessing:
		return fault.New(fault.EvidenceProcessing,
			"evidence %s is currently being processed", ev.ID).WithEvidence(ev.ID)
	case model.EvidenceFailed:
		msg := "processing failed"
		if ev.ErrorMessage != nil {
			msg = *ev.ErrorMessage
		}
		return fault.New(fault.EvidenceFailed,
			"evidence %s processing failed: %s", ev.ID, msg).WithEvidence(ev.ID).
			WithAction("Upload a valid document")
	case model.EvidenceProcessed:
		// fall through to the text check
	default:
		return fault.New(fault.EvidenceNotProcessed,
			"evidence %s has status %q", ev.ID, ev.Status).WithEvidence(ev.ID)
	}
	if ev.ExtractedText == "" {
		return fault.New(fault.EvidenceEmpty,
			"evidence %s has no extracted text", ev.ID).WithEvidence(ev.ID).
			WithAction("Upload a PDF or TXT file with content")
	}
	return nil
}

func (o *Orchestrator) executeRun(ctx context.Context, tenantID, actorID string,
	evidence model.Evidence, run model.WorkflowRun) (RunResult, error) {

	// 1. Findings.
	findings := ExtractFindings(evidence.ExtractedText)
	for i := range findings {
		findings[i].RunID = run.ID
		findings[i].EvidenceID = evidence.ID
	}
	if err := o.store.AppendFindings(ctx, findings); err != nil {
		return RunResult{}, fmt.Errorf("persist findings: %w", err)
	}
	o.record(ctx, audit.EventMutation, audit.ActionFindingsGenerated,
		"evidence:"+evidence.ID, map[string]any{"finding_count": len(findings)})

	// 2. Correlation over the current watchtower state.
	correlation, err := o.buildCorrelation(ctx, tenantID, evidence, findings)
	if err != nil {
		return RunResult{}, fmt.Errorf("build correlation: %w", err)
	}
	snapshot, err := correlation.Canonical()
	if err != nil {
		return RunResult{}, fmt.Errorf("canonicalize correlation: %w", err)
	}
	o.record(ctx, audit.EventMutation, audit.ActionCorrelationGenerated,
		"evidence:"+evidence.ID, map[string]any{
			"vendor_matches":   len(correlation.VendorMatches),
			"active_alerts":    correlation.WatchtowerSnapshot.ActiveAlerts,
			"findings_count":   len(findings),
			"narrative_points": len(correlation.Narrative),
		})

	// 3. Action plan, carrying the correlation snapshot.
	draft := BuildActionPlan(findings, correlation.VendorMatches)
	if _, err := o.store.AttachActionPlan(ctx, model.ActionPlan{
		RunID:               run.ID,
		EvidenceID:          evidence.ID,
		Rationale:           draft.Rationale,
		Actions:             draft.Actions,
		Owners:              draft.Owners,
		Deadlines:           draft.Deadlines,
		CorrelationSnapshot: snapshot,
	}); err != nil {
		return RunResult{}, fmt.Errorf("persist action plan: %w", err)
	}
	o.record(ctx, audit.EventMutation, audit.ActionActionPlanGenerated,
		"evidence:"+evidence.ID, map[string]any{
			"findings_count": len(findings),
			"actions_count":  len(draft.Actions),
		})

	// 4. Seal the run.
	counts := RunResult{
		RunID:             run.ID,
		EvidenceID:        evidence.ID,
		Status:            model.RunSuccess,
		FindingsCount:     len(findings),
		CorrelationsCount: len(correlation.VendorMatches),
		ActionsCount:      len(draft.Actions),
	}
	if err := o.store.MarkRunTerminal(ctx, run.ID, model.RunSuccess, nil,
		counts.FindingsCount, counts.CorrelationsCount, counts.ActionsCount); err != nil {
		return RunResult{}, fmt.Errorf("mark run success: %w", err)
	}
	o.record(ctx, audit.EventMutation, audit.ActionWorkflowRunCompleted,
		"workflow_run:"+run.ID, map[string]any{
			"evidence_id":        evidence.ID,
			"findings_count":     counts.FindingsCount,
			"correlations_count": counts.CorrelationsCount,
			"actions_count":      counts.ActionsCount,
		})

	counts.Message = fmt.Sprintf("Workflow completed: %d findings, %d actions",
		counts.FindingsCount, counts.ActionsCount)
	o.logger.Info("workflow run completed", "run_id", run.ID,
		"evidence_id", evidence.ID, "findings", counts.FindingsCount)
	return counts, nil
}

func (o *Orchestrator) buildCorrelation(ctx context.Context, tenantID string,
	evidence model.Evidence, findings []model.Finding) (Correlation, error) {

	total, err := o.store.CountFeedItems(ctx)
	if err != nil {
		return Correlation{}, err
	}
	alerts, err := o.store.CountActiveAlerts(ctx)
	if err != nil {
		return Correlation{}, err
	}
	recent, err := o.store.RecentFeedItems(ctx, maxTopItems)
	if err != nil {
		return Correlation{}, err
	}
	statuses, err := o.store.ListSyncStatuses(ctx)
	if err != nil {
		return Correlation{}, err
	}
	vendors, err := o.store.ListVendors(ctx, tenantID)
	if err != nil {
		return Correlation{}, err
	}

	return BuildCorrelation(CorrelationInput{
		Evidence:       evidence,
		Findings:       findings,
		Vendors:        vendors,
		TotalFeedItems: total,
		ActiveAlerts:   alerts,
		RecentItems:    recent,
		SyncStatuses:   statuses,
		Now:            o.now(),
	}), nil
}

func (o *Orchestrator) record(ctx context.Context, eventType audit.EventType,
	action, resource string, metadata map[string]any) {

	if o.audit == nil {
		return
	}
	if err := o.audit.Record(ctx, eventType, action, resource, metadata); err != nil {
		o.logger.Warn("audit record failed", "action", action, "error", err)
	}
}
