// Domain-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for the compliance core.
var (
	// Tenancy attributes
	AttrTenantID = attribute.Key("forge.tenant.id")

	// Feed sync attributes
	AttrSourceID     = attribute.Key("forge.source.id")
	AttrSyncForced   = attribute.Key("forge.sync.forced")
	AttrSyncCached   = attribute.Key("forge.sync.cached")
	AttrItemsFetched = attribute.Key("forge.sync.items_fetched")
	AttrItemsAdded   = attribute.Key("forge.sync.items_added")

	// Workflow attributes
	AttrEvidenceID    = attribute.Key("forge.evidence.id")
	AttrRunID         = attribute.Key("forge.run.id")
	AttrRunStatus     = attribute.Key("forge.run.status")
	AttrFindingsCount = attribute.Key("forge.run.findings_count")
	AttrActionsCount  = attribute.Key("forge.run.actions_count")

	// Export attributes
	AttrExportFilename = attribute.Key("forge.export.filename")
)

// SyncOperation creates attributes for one feed source sync.
func SyncOperation(sourceID string, forced bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSourceID.String(sourceID),
		AttrSyncForced.Bool(forced),
	}
}

// WorkflowOperation creates attributes for a workflow run.
func WorkflowOperation(tenantID, evidenceID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTenantID.String(tenantID),
		AttrEvidenceID.String(evidenceID),
	}
}

// ExportOperation creates attributes for an audit packet export.
func ExportOperation(tenantID, evidenceID, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTenantID.String(tenantID),
		AttrEvidenceID.String(evidenceID),
		AttrRunID.String(runID),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
