package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pharmaforge/forge/pkg/auth"
	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/observability"
	"github.com/pharmaforge/forge/pkg/risk"
)

// apiServer exposes the golden workflow over HTTP. Authentication is
// terminated upstream; the gateway forwards identity in trusted headers.
type apiServer struct {
	orchestrator *risk.Orchestrator
	exporter     *risk.Exporter
	obs          *observability.Provider
	slos         *observability.SLOTracker
	logger       *slog.Logger
}

func newAPIServer(orch *risk.Orchestrator, exp *risk.Exporter,
	obs *observability.Provider, slos *observability.SLOTracker) *apiServer {

	return &apiServer{
		orchestrator: orch,
		exporter:     exp,
		obs:          obs,
		slos:         slos,
		logger:       slog.Default().With("component", "api"),
	}
}

func (a *apiServer) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/evidence/{id}/workflow-runs", a.handleRunWorkflow)
	mux.HandleFunc("GET /api/v1/evidence/{id}/audit-packet", a.handleExportPacket)
}

func (a *apiServer) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		writeFault(w, fault.New(fault.Internal, "missing X-Tenant-ID header"), http.StatusBadRequest)
		return
	}
	evidenceID := r.PathValue("id")
	actorID := r.Header.Get("X-Actor-ID")

	ctx := auth.WithRequestContext(r.Context(), auth.RequestContext{
		TenantID:      tenantID,
		ActorID:       actorID,
		SourceAddress: r.RemoteAddr,
	})

	start := time.Now()
	var done func(error)
	if a.obs != nil {
		ctx, done = a.obs.TrackOperation(ctx, "workflow.run",
			observability.WorkflowOperation(tenantID, evidenceID)...)
	}

	result, err := a.orchestrator.RunWorkflow(ctx, tenantID, evidenceID, actorID)
	if done != nil {
		done(err)
	}
	if a.slos != nil {
		a.slos.Record(observability.SLOObservation{
			Operation: observability.OpWorkflow,
			Latency:   time.Since(start),
			Success:   err == nil,
		})
	}
	if err != nil {
		a.logger.Warn("workflow run refused", "evidence_id", evidenceID, "error", err)
		writeFault(w, fault.From(err), faultStatus(fault.KindOf(err)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (a *apiServer) handleExportPacket(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		writeFault(w, fault.New(fault.Internal, "missing X-Tenant-ID header"), http.StatusBadRequest)
		return
	}
	evidenceID := r.PathValue("id")
	runID := r.URL.Query().Get("run_id")

	ctx := auth.WithRequestContext(r.Context(), auth.RequestContext{
		TenantID:      tenantID,
		ActorID:       r.Header.Get("X-Actor-ID"),
		SourceAddress: r.RemoteAddr,
	})

	start := time.Now()
	var done func(error)
	if a.obs != nil {
		ctx, done = a.obs.TrackOperation(ctx, "export.audit_packet",
			observability.ExportOperation(tenantID, evidenceID, runID)...)
	}

	export, err := a.exporter.ExportAuditPacket(ctx, tenantID, evidenceID, runID)
	if done != nil {
		done(err)
	}
	if a.slos != nil {
		a.slos.Record(observability.SLOObservation{
			Operation: observability.OpExport,
			Latency:   time.Since(start),
			Success:   err == nil,
		})
	}
	if err != nil {
		a.logger.Warn("export refused", "evidence_id", evidenceID, "run_id", runID, "error", err)
		writeFault(w, fault.From(err), faultStatus(fault.KindOf(err)))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Content)
}

// faultStatus maps the refusal taxonomy onto HTTP status codes. Missing
// resources are 404, state preconditions 409, everything else 500.
func faultStatus(kind fault.Kind) int {
	switch kind {
	case fault.EvidenceNotFound, fault.NoWorkflowRun, fault.WorkflowRunNotFound:
		return http.StatusNotFound
	case fault.EvidenceNotProcessed, fault.EvidencePending, fault.EvidenceProcessing,
		fault.EvidenceFailed, fault.EvidenceEmpty, fault.WorkflowRunNotSuccessful,
		fault.FindingsMissing, fault.ActionPlanMissing, fault.CorrelationMissing:
		return http.StatusConflict
	case fault.Timeout:
		return http.StatusGatewayTimeout
	case fault.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeFault(w http.ResponseWriter, f *fault.Fault, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(f)
}
