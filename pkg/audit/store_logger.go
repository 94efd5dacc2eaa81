package audit

import (
	"context"
	"strings"

	"github.com/pharmaforge/forge/pkg/model"
	"github.com/pharmaforge/forge/pkg/store"
)

// StoreLogger records audit events both to the line sink and to the
// append-only audit_log table, so exported packets can replay the trail.
type StoreLogger struct {
	inner Logger
	store *store.Store
}

// NewStoreLogger wraps a line logger with database persistence.
func NewStoreLogger(inner Logger, s *store.Store) *StoreLogger {
	return &StoreLogger{inner: inner, store: s}
}

// Record emits the event line and persists the row. Persistence is best
// effort inside the store; the line sink error is the one surfaced.
func (l *StoreLogger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := BuildEvent(ctx, eventType, action, resource, metadata)

	entry := model.AuditEntry{
		ID:        event.ID,
		TenantID:  event.TenantID,
		Action:    event.Action,
		Details:   event.Metadata,
		Timestamp: event.Timestamp,
	}
	if event.ActorID != "" {
		actor := event.ActorID
		entry.ActorID = &actor
	}
	if event.SourceAddress != "" {
		addr := event.SourceAddress
		entry.SourceAddress = &addr
	}
	// Resources are "type:id" (run:..., evidence:...).
	if etype, eid, ok := strings.Cut(resource, ":"); ok {
		entry.EntityType = &etype
		entry.EntityID = &eid
	} else if resource != "" {
		entry.EntityID = &resource
	}
	l.store.AppendAuditEntry(ctx, entry)

	if l.inner == nil {
		return nil
	}
	return l.inner.Record(ctx, eventType, action, resource, metadata)
}
