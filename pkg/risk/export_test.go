package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaforge/forge/pkg/audit"
	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
	"github.com/pharmaforge/forge/pkg/store"
)

// runGoldenWorkflow seeds a vendor plus processed evidence and executes one
// successful run, returning what the export path needs.
func runGoldenWorkflow(t *testing.T, s *store.Store, tenantID string) (evidenceID, runID string) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateVendor(ctx, model.Vendor{
		TenantID: tenantID, Name: "Contoso Pharmaceuticals", RiskScore: 80,
	})
	require.NoError(t, err)

	ev := seedEvidence(t, s, tenantID,
		"Temperature excursion during cGMP audit; the supplier Contoso Pharma "+
			"failed to document the deviation.", model.EvidenceProcessed)

	o := fixedOrchestrator(s, audit.NewStoreLogger(nil, s))
	result, err := o.RunWorkflow(ctx, tenantID, ev.ID, "qa-user")
	require.NoError(t, err)
	return ev.ID, result.RunID
}

func TestExportAuditPacket_Success(t *testing.T) {
	s, tenantID := setupRisk(t)
	evidenceID, runID := runGoldenWorkflow(t, s, tenantID)

	e := NewExporter(s, audit.NewStoreLogger(nil, s))
	export, err := e.ExportAuditPacket(context.Background(), tenantID, evidenceID, runID)
	require.NoError(t, err)

	assert.Equal(t, "text/markdown", export.ContentType)
	assert.Equal(t, "audit_packet_"+evidenceID+"_"+runID+".md", export.Filename)

	content := string(export.Content)
	assert.Contains(t, content, "Workflow Run ID: "+runID)
	assert.Contains(t, content, "Cold Chain Storage Compliance Gap")
	assert.Contains(t, content, "21 CFR 211.142")
	assert.Contains(t, content, OwnerQualityAssurance)
	assert.Contains(t, content, DeadlineUrgent)
	assert.Contains(t, content, "### Risk Narrative")
	assert.Contains(t, content, "Contoso Pharmaceuticals")
	assert.Contains(t, content, audit.ActionWorkflowRunCompleted)
	assert.Contains(t, content, "_End of Audit Packet_")

	// Absent data is omitted, never papered over.
	assert.NotContains(t, content, "Unknown")
	assert.NotContains(t, content, "N/A")

	entries, err := s.ListAuditEntriesForEntities(context.Background(), tenantID, []string{runID})
	require.NoError(t, err)
	var exported bool
	for _, entry := range entries {
		if entry.Action == audit.ActionAuditPacketExported {
			exported = true
			assert.Equal(t, export.Filename, entry.Details["filename"])
		}
	}
	assert.True(t, exported, "export must leave an audit trail")
}

func TestExportAuditPacket_LatestRunWhenUnspecified(t *testing.T) {
	s, tenantID := setupRisk(t)
	evidenceID, runID := runGoldenWorkflow(t, s, tenantID)

	e := NewExporter(s, nil)
	export, err := e.ExportAuditPacket(context.Background(), tenantID, evidenceID, "")
	require.NoError(t, err)
	assert.Contains(t, string(export.Content), "Workflow Run ID: "+runID)
}

func TestExportAuditPacket_NoRunYet(t *testing.T) {
	s, tenantID := setupRisk(t)
	ev := seedEvidence(t, s, tenantID, "recall notice text", model.EvidenceProcessed)

	e := NewExporter(s, nil)
	_, err := e.ExportAuditPacket(context.Background(), tenantID, ev.ID, "")
	require.Error(t, err)

	f := fault.From(err)
	assert.Equal(t, fault.NoWorkflowRun, f.Kind)
	assert.Equal(t, "Run workflow for evidence "+ev.ID+" first", f.ActionRequired)
}

func TestExportAuditPacket_RefusalTaxonomy(t *testing.T) {
	s, tenantID := setupRisk(t)
	e := NewExporter(s, nil)
	ctx := context.Background()

	_, err := e.ExportAuditPacket(ctx, tenantID, "missing", "")
	assert.True(t, fault.Is(err, fault.EvidenceNotFound))

	pending := seedEvidence(t, s, tenantID, "", model.EvidencePending)
	_, err = e.ExportAuditPacket(ctx, tenantID, pending.ID, "")
	assert.True(t, fault.Is(err, fault.EvidenceNotProcessed))

	processed := seedEvidence(t, s, tenantID, "labeling defect", model.EvidenceProcessed)
	_, err = e.ExportAuditPacket(ctx, tenantID, processed.ID, "no-such-run")
	assert.True(t, fault.Is(err, fault.WorkflowRunNotFound))
}

func TestExportAuditPacket_RunEvidenceMismatch(t *testing.T) {
	s, tenantID := setupRisk(t)
	_, runID := runGoldenWorkflow(t, s, tenantID)
	other := seedEvidence(t, s, tenantID, "other document text", model.EvidenceProcessed)

	e := NewExporter(s, nil)
	_, err := e.ExportAuditPacket(context.Background(), tenantID, other.ID, runID)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.WorkflowRunNotFound))
}

func TestExportAuditPacket_FailedRunRefused(t *testing.T) {
	s, tenantID := setupRisk(t)
	ctx := context.Background()
	ev := seedEvidence(t, s, tenantID, "deviation text", model.EvidenceProcessed)

	run, err := s.CreateWorkflowRun(ctx, tenantID, ev.ID)
	require.NoError(t, err)
	msg := "pipeline blew up"
	require.NoError(t, s.MarkRunTerminal(ctx, run.ID, model.RunFailed, &msg, 0, 0, 0))

	e := NewExporter(s, nil)
	_, err = e.ExportAuditPacket(ctx, tenantID, ev.ID, run.ID)
	require.Error(t, err)

	f := fault.From(err)
	assert.Equal(t, fault.WorkflowRunNotSuccessful, f.Kind)
	assert.Equal(t, run.ID, f.RunID)
}

func TestExportAuditPacket_MissingArtifacts(t *testing.T) {
	s, tenantID := setupRisk(t)
	ctx := context.Background()
	ev := seedEvidence(t, s, tenantID, "deviation text", model.EvidenceProcessed)

	// A run sealed without artifacts: findings must be flagged first.
	run, err := s.CreateWorkflowRun(ctx, tenantID, ev.ID)
	require.NoError(t, err)
	require.NoError(t, s.MarkRunTerminal(ctx, run.ID, model.RunSuccess, nil, 0, 0, 0))

	e := NewExporter(s, nil)
	_, err = e.ExportAuditPacket(ctx, tenantID, ev.ID, run.ID)
	assert.True(t, fault.Is(err, fault.FindingsMissing))

	// With findings but no plan, the plan is the gap.
	run2, err := s.CreateWorkflowRun(ctx, tenantID, ev.ID)
	require.NoError(t, err)
	require.NoError(t, s.AppendFindings(ctx, []model.Finding{{
		RunID: run2.ID, EvidenceID: ev.ID,
		Title: "Product Quality Deviation Detected", Severity: model.SeverityHigh,
	}}))
	require.NoError(t, s.MarkRunTerminal(ctx, run2.ID, model.RunSuccess, nil, 1, 0, 0))

	_, err = e.ExportAuditPacket(ctx, tenantID, ev.ID, run2.ID)
	assert.True(t, fault.Is(err, fault.ActionPlanMissing))

	// With a plan missing its snapshot, correlation is the gap.
	run3, err := s.CreateWorkflowRun(ctx, tenantID, ev.ID)
	require.NoError(t, err)
	require.NoError(t, s.AppendFindings(ctx, []model.Finding{{
		RunID: run3.ID, EvidenceID: ev.ID,
		Title: "Product Quality Deviation Detected", Severity: model.SeverityHigh,
	}}))
	_, err = s.AttachActionPlan(ctx, model.ActionPlan{
		RunID: run3.ID, EvidenceID: ev.ID, Rationale: "r",
		Actions: []model.Action{{Title: "a", Priority: model.SeverityLow}},
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkRunTerminal(ctx, run3.ID, model.RunSuccess, nil, 1, 0, 1))

	_, err = e.ExportAuditPacket(ctx, tenantID, ev.ID, run3.ID)
	assert.True(t, fault.Is(err, fault.CorrelationMissing))
}

func TestExportAuditPacket_LongTextExcerpted(t *testing.T) {
	s, tenantID := setupRisk(t)
	ctx := context.Background()

	long := make([]byte, 0, excerptLen+200)
	for len(long) < excerptLen+100 {
		long = append(long, []byte("temperature deviation recorded. ")...)
	}
	ev := seedEvidence(t, s, tenantID, string(long), model.EvidenceProcessed)

	o := fixedOrchestrator(s, nil)
	result, err := o.RunWorkflow(ctx, tenantID, ev.ID, "qa-user")
	require.NoError(t, err)

	e := NewExporter(s, nil)
	export, err := e.ExportAuditPacket(ctx, tenantID, ev.ID, result.RunID)
	require.NoError(t, err)
	assert.Contains(t, string(export.Content), string(long[:excerptLen])+"...")
}
