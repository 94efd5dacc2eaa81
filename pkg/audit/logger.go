package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaforge/forge/pkg/auth"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventAccess   EventType = "ACCESS"
	EventMutation EventType = "MUTATION"
	EventSystem   EventType = "SYSTEM"
)

// Audit actions recorded by the core pipelines. Stable identifiers; the
// export packet and compliance reviews key off them.
const (
	ActionFindingsGenerated    = "findings_generated"
	ActionCorrelationGenerated = "correlation_generated"
	ActionActionPlanGenerated  = "action_plan_generated"
	ActionWorkflowRunCompleted = "workflow_run_completed"
	ActionWorkflowRunFailed    = "workflow_run_failed"
	ActionAuditPacketExported  = "audit_packet_exported"
)

// Event represents a structured audit record.
type Event struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	ActorID       string         `json:"actor_id"`
	Type          EventType      `json:"type"`
	Action        string         `json:"action"`
	Resource      string         `json:"resource"`
	SourceAddress string         `json:"source_address,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

// logger implements Logger, writing structured JSON to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := BuildEvent(ctx, eventType, action, resource, metadata)

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// BuildEvent resolves identity and request facts from the context. Absent a
// principal, the event is attributed to "system" (scheduled syncs).
func BuildEvent(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) Event {
	tenantID := "system"
	actorID := "system"
	if principal, err := auth.GetPrincipal(ctx); err == nil {
		tenantID = principal.GetTenantID()
		actorID = principal.GetID()
	}

	event := Event{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ActorID:   actorID,
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if rc, ok := auth.GetRequestContext(ctx); ok {
		event.SourceAddress = rc.SourceAddress
		if rc.TenantID != "" {
			event.TenantID = rc.TenantID
		}
		if rc.ActorID != "" {
			event.ActorID = rc.ActorID
		}
	}
	return event
}
