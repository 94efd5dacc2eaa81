package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pharmaforge/forge/pkg/audit"
	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
	"github.com/pharmaforge/forge/pkg/store"
)

const excerptLen = 500

// Export is the rendered audit packet.
type Export struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Exporter validates a workflow run end to end and renders the audit
// packet. Validation is strict: a packet is only produced when every
// mandatory artifact exists; optional absences become audit-log warnings,
// never placeholder text.
type Exporter struct {
	store  *store.Store
	audit  audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter builds an Exporter. A nil audit logger disables capture.
func NewExporter(st *store.Store, auditLog audit.Logger) *Exporter {
	return &Exporter{
		store:  st,
		audit:  auditLog,
		logger: slog.Default().With("component", "risk.export"),
		now:    time.Now,
	}
}

// ExportAuditPacket validates and renders the packet for a run. An empty
// runID selects the latest successful run for the evidence.
func (e *Exporter) ExportAuditPacket(ctx context.Context, tenantID, evidenceID, runID string) (Export, error) {
	evidence, err := e.store.GetEvidence(ctx, tenantID, evidenceID)
	if err == store.ErrEvidenceNotFound {
		return Export{}, fault.New(fault.EvidenceNotFound, "evidence %s not found", evidenceID).
			WithEvidence(evidenceID)
	}
	if err != nil {
		return Export{}, fault.From(err)
	}
	if evidence.Status != model.EvidenceProcessed {
		return Export{}, fault.New(fault.EvidenceNotProcessed,
			"evidence %s is not processed (status: %s)", evidenceID, evidence.Status).
			WithEvidence(evidenceID)
	}

	var run model.WorkflowRun
	if runID == "" {
		run, err = e.store.LatestSuccessfulRun(ctx, tenantID, evidenceID)
		if err == store.ErrRunNotFound {
			return Export{}, fault.New(fault.NoWorkflowRun,
				"no successful workflow run found for evidence %s", evidenceID).
				WithEvidence(evidenceID).
				WithAction(fmt.Sprintf("Run workflow for evidence %s first", evidenceID))
		}
		if err != nil {
			return Export{}, fault.From(err)
		}
	} else {
		run, err = e.store.GetWorkflowRun(ctx, tenantID, runID)
		if err == store.ErrRunNotFound || (err == nil && run.EvidenceID != evidenceID) {
			return Export{}, fault.New(fault.WorkflowRunNotFound,
				"workflow run %s not found for evidence %s", runID, evidenceID).
				WithEvidence(evidenceID).WithRun(runID)
		}
		if err != nil {
			return Export{}, fault.From(err)
		}
		if run.Status != model.RunSuccess {
			return Export{}, fault.New(fault.WorkflowRunNotSuccessful,
				"workflow run %s has status %q; only successful runs can be exported",
				run.ID, run.Status).WithEvidence(evidenceID).WithRun(run.ID)
		}
	}

	bundle, err := e.store.ReadExportBundle(ctx, tenantID, run.ID)
	if err != nil {
		return Export{}, fault.From(err)
	}
	if len(bundle.Findings) == 0 {
		return Export{}, fault.New(fault.FindingsMissing,
			"workflow run %s has no findings", run.ID).
			WithEvidence(evidenceID).WithRun(run.ID)
	}
	if bundle.Plan == nil {
		return Export{}, fault.New(fault.ActionPlanMissing,
			"workflow run %s has no action plan", run.ID).
			WithEvidence(evidenceID).WithRun(run.ID)
	}
	if len(bundle.Plan.CorrelationSnapshot) == 0 {
		return Export{}, fault.New(fault.CorrelationMissing,
			"workflow run %s has no correlation data", run.ID).
			WithEvidence(evidenceID).WithRun(run.ID)
	}

	warnings := e.collectWarnings(bundle)
	content := renderPacket(bundle, e.now().UTC())
	filename := fmt.Sprintf("audit_packet_%s_%s.md", evidenceID, run.ID)

	if e.audit != nil {
		metadata := map[string]any{
			"filename":       filename,
			"evidence_id":    evidenceID,
			"run_id":         run.ID,
			"findings_count": len(bundle.Findings),
			"actions_count":  len(bundle.Plan.Actions),
		}
		if len(warnings) > 0 {
			metadata["warnings"] = warnings
		}
		if err := e.audit.Record(ctx, audit.EventAccess, audit.ActionAuditPacketExported,
			"workflow_run:"+run.ID, metadata); err != nil {
			e.logger.Warn("export audit record failed", "run_id", run.ID, "error", err)
		}
	}

	return Export{
		Content:     content,
		ContentType: "text/markdown",
		Filename:    filename,
	}, nil
}

// collectWarnings surfaces optional absences in the audit log instead of
// substituting placeholder text in the packet.
func (e *Exporter) collectWarnings(bundle store.ExportBundle) []string {
	var warnings []string
	missingCFR := 0
	for _, f := range bundle.Findings {
		if len(f.CFRRefs) == 0 {
			missingCFR++
		}
	}
	if missingCFR > 0 {
		warnings = append(warnings, fmt.Sprintf("%d finding(s) without CFR refs", missingCFR))
	}

	missingOwner, missingDeadline := 0, 0
	for _, a := range bundle.Plan.Actions {
		if a.Owner == "" {
			missingOwner++
		}
		if a.Deadline == "" {
			missingDeadline++
		}
	}
	if missingOwner > 0 {
		warnings = append(warnings, fmt.Sprintf("%d action(s) without owner", missingOwner))
	}
	if missingDeadline > 0 {
		warnings = append(warnings, fmt.Sprintf("%d action(s) without deadline", missingDeadline))
	}

	var correlation Correlation
	if err := json.Unmarshal(bundle.Plan.CorrelationSnapshot, &correlation); err == nil {
		if len(correlation.Narrative) == 0 {
			warnings = append(warnings, "correlation narrative is empty")
		}
	}

	for _, w := range warnings {
		e.logger.Warn("export packet gap", "run_id", bundle.Run.ID, "warning", w)
	}
	return warnings
}

func renderPacket(bundle store.ExportBundle, now time.Time) []byte {
	var b strings.Builder
	ev := bundle.Evidence
	run := bundle.Run
	plan := bundle.Plan

	fmt.Fprintf(&b, "# Audit Packet: %s\n", ev.Filename)
	fmt.Fprintf(&b, "**Workflow Run ID: %s**\n", run.ID)
	fmt.Fprintf(&b, "Generated: %s\n\n---\n\n", now.Format(time.RFC3339))

	b.WriteString("## Workflow Run Information\n\n")
	fmt.Fprintf(&b, "- **Workflow Run ID**: %s\n", run.ID)
	fmt.Fprintf(&b, "- **Status**: %s\n", run.Status)
	fmt.Fprintf(&b, "- **Run Started At**: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Run Completed At**: %s\n", run.CompletedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## 1. Evidence Metadata\n\n")
	fmt.Fprintf(&b, "- **ID**: %s\n", ev.ID)
	fmt.Fprintf(&b, "- **Filename**: %s\n", ev.Filename)
	fmt.Fprintf(&b, "- **SHA256**: %s\n", ev.ContentHash)
	fmt.Fprintf(&b, "- **Uploaded At**: %s\n\n", ev.CreatedAt.UTC().Format(time.RFC3339))

	if ev.ExtractedText != "" {
		excerpt := ev.ExtractedText
		if len(excerpt) > excerptLen {
			excerpt = excerpt[:excerptLen] + "..."
		}
		fmt.Fprintf(&b, "### Extracted Text Summary\n\n```\n%s\n```\n\n", excerpt)
	}
	b.WriteString("---\n\n")

	b.WriteString("## 2. Compliance Findings\n\n")
	fmt.Fprintf(&b, "**%d finding(s) identified from this workflow run.**\n\n", len(bundle.Findings))
	for i, f := range bundle.Findings {
		fmt.Fprintf(&b, "### Finding %d: %s\n", i+1, f.Title)
		fmt.Fprintf(&b, "- **Severity**: %s\n", f.Severity)
		fmt.Fprintf(&b, "- **Description**: %s\n", f.Description)
		if len(f.CFRRefs) > 0 {
			fmt.Fprintf(&b, "- **CFR References**: %s\n", strings.Join(f.CFRRefs, ", "))
		}
		if len(f.Citations) > 0 {
			fmt.Fprintf(&b, "- **Citations**: %s\n", strings.Join(f.Citations, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")

	b.WriteString("## 3. Watchtower Correlation\n\n")
	var correlation Correlation
	if err := json.Unmarshal(plan.CorrelationSnapshot, &correlation); err == nil {
		renderCorrelation(&b, correlation, len(bundle.Findings))
	}
	b.WriteString("---\n\n")

	b.WriteString("## 4. Action Plan\n\n")
	fmt.Fprintf(&b, "**Rationale**: %s\n\n### Actions:\n\n", plan.Rationale)
	for i, a := range plan.Actions {
		fmt.Fprintf(&b, "#### %d. %s\n", i+1, a.Title)
		fmt.Fprintf(&b, "- **Priority**: %s\n", a.Priority)
		fmt.Fprintf(&b, "- **Description**: %s\n", a.Description)
		if a.Owner != "" {
			fmt.Fprintf(&b, "- **Owner**: %s\n", a.Owner)
		}
		if a.Deadline != "" {
			fmt.Fprintf(&b, "- **Deadline**: %s\n", a.Deadline)
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")

	b.WriteString("## 5. Audit Log\n\n")
	b.WriteString("| Timestamp | Action | Details |\n")
	b.WriteString("|-----------|--------|---------|\n")
	if len(bundle.AuditEntries) == 0 {
		b.WriteString("| _No audit entries_ | | |\n")
	}
	for _, entry := range bundle.AuditEntries {
		details := ""
		if len(entry.Details) > 0 {
			if raw, err := json.Marshal(entry.Details); err == nil {
				details = string(raw)
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n",
			entry.Timestamp.UTC().Format(time.RFC3339), entry.Action, details)
	}

	b.WriteString("\n---\n\n_End of Audit Packet_\n")
	return []byte(b.String())
}

func renderCorrelation(b *strings.Builder, c Correlation, findingsCount int) {
	snap := c.WatchtowerSnapshot

	b.WriteString("### Supply Chain Intelligence Snapshot\n\n")
	fmt.Fprintf(b, "- **Total Feed Items**: %d\n", snap.TotalFeedItems)
	fmt.Fprintf(b, "- **Active Alerts**: %d\n", snap.ActiveAlerts)
	fmt.Fprintf(b, "- **Snapshot Timestamp**: %s\n", snap.Timestamp)
	fmt.Fprintf(b, "- **Correlation Timestamp**: %s\n\n", c.CorrelationTimestamp)

	b.WriteString("### Feed Sources Status\n\n")
	if len(snap.SourcesStatus) > 0 {
		b.WriteString("| Source | Last Success | Healthy |\n")
		b.WriteString("|--------|--------------|---------|\n")
		for _, s := range snap.SourcesStatus {
			healthy := "✗"
			if s.Healthy {
				healthy = "✓"
			}
			lastSuccess := "Never"
			if s.LastSuccessAt != nil {
				lastSuccess = *s.LastSuccessAt
			}
			fmt.Fprintf(b, "| %s | %s | %s |\n", s.Source, lastSuccess, healthy)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("_No feed sources configured._\n\n")
	}

	b.WriteString("### Vendor Matches\n\n")
	if len(c.VendorMatches) > 0 {
		b.WriteString("| Vendor | Match Basis | Risk Score | Risk Level |\n")
		b.WriteString("|--------|-------------|------------|------------|\n")
		for _, vm := range c.VendorMatches {
			score, level := "-", "-"
			if vm.RiskScore != nil {
				score = fmt.Sprintf("%d", *vm.RiskScore)
			}
			if vm.RiskLevel != nil {
				level = string(*vm.RiskLevel)
			}
			fmt.Fprintf(b, "| %s | %s | %s | %s |\n", vm.Name, vm.MatchBasis, score, level)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("_No vendor matches found in document._\n\n")
	}

	b.WriteString("### Risk Narrative\n\n")
	for _, bullet := range c.Narrative {
		fmt.Fprintf(b, "- %s\n", bullet)
	}
	b.WriteString("\n")

	highRisk := 0
	for _, vm := range c.VendorMatches {
		if vm.RiskLevel != nil && (*vm.RiskLevel == model.RiskHigh || *vm.RiskLevel == model.RiskCritical) {
			highRisk++
		}
	}
	b.WriteString("### Correlation Summary\n\n")
	fmt.Fprintf(b, "- **Findings Analyzed**: %d\n", findingsCount)
	fmt.Fprintf(b, "- **Vendors Matched**: %d\n", len(c.VendorMatches))
	fmt.Fprintf(b, "- **High/Critical Risk Vendors**: %d\n", highRisk)
	fmt.Fprintf(b, "- **Active Watchtower Alerts**: %d\n\n", snap.ActiveAlerts)
}
