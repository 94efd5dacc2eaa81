package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaforge/forge/pkg/model"
)

// AppendAuditEntry writes one audit row. Audit capture must never fail the
// operation being audited, so errors are logged and swallowed.
func (s *Store) AppendAuditEntry(ctx context.Context, entry model.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	details, err := jsonText(entry.Details)
	if err != nil {
		s.logger.Error("audit entry details marshal failed", "action", entry.Action, "error", err)
		details = nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(id, tenant_id, actor_id, action, entity_type, entity_id,
			 details, source_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.TenantID, derefOrNil(entry.ActorID), entry.Action,
		derefOrNil(entry.EntityType), derefOrNil(entry.EntityID),
		details, derefOrNil(entry.SourceAddress), entry.Timestamp)
	if err != nil {
		s.logger.Error("audit entry write failed", "action", entry.Action, "error", err)
	}
}

// ListAuditEntriesForEntities returns a tenant's audit rows touching any of
// the given entity ids, oldest first.
func (s *Store) ListAuditEntriesForEntities(ctx context.Context, tenantID string, entityIDs []string) ([]model.AuditEntry, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	var entries []model.AuditEntry
	seen := make(map[string]bool)
	for _, entityID := range entityIDs {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, tenant_id, actor_id, action, entity_type, entity_id,
			       details, source_address, created_at
			FROM audit_log
			WHERE tenant_id = $1 AND entity_id = $2
			ORDER BY created_at`, tenantID, entityID)
		if err != nil {
			return nil, err
		}
		batch, err := collectAuditEntries(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range batch {
			if !seen[e.ID] {
				seen[e.ID] = true
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

func collectAuditEntries(rows *sql.Rows) ([]model.AuditEntry, error) {
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e                   model.AuditEntry
			actor, etype, eid   sql.NullString
			details, sourceAddr sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &actor, &e.Action,
			&etype, &eid, &details, &sourceAddr, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ActorID = strPtr(actor)
		e.EntityType = strPtr(etype)
		e.EntityID = strPtr(eid)
		e.SourceAddress = strPtr(sourceAddr)
		scanJSON(details, &e.Details)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
