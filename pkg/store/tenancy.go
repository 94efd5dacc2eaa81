package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaforge/forge/pkg/auth"
	"github.com/pharmaforge/forge/pkg/model"
)

// CreateTenant provisions a tenant row and returns it.
func (s *Store) CreateTenant(ctx context.Context, name string) (auth.Tenant, error) {
	t := auth.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    "ACTIVE",
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.Status, t.CreatedAt)
	if err != nil {
		return auth.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

// GetTenant looks up a tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (auth.Tenant, error) {
	var t auth.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, created_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return auth.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return auth.Tenant{}, err
	}
	return t, nil
}

// CreateVendor registers a supplier under a tenant. The risk level is
// derived from the score at write time.
func (s *Store) CreateVendor(ctx context.Context, v model.Vendor) (model.Vendor, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.RiskLevel = model.DeriveRiskLevel(v.RiskScore)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors
			(id, tenant_id, name, code, country, risk_score, risk_level, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.TenantID, v.Name, v.Code, v.Country,
		v.RiskScore, string(v.RiskLevel), v.Approved, v.CreatedAt)
	if err != nil {
		return model.Vendor{}, fmt.Errorf("create vendor: %w", err)
	}
	return v, nil
}

// ListVendors returns a tenant's vendors ordered by name.
func (s *Store) ListVendors(ctx context.Context, tenantID string) ([]model.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, code, country, risk_score, risk_level, approved, created_at
		FROM vendors WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		var (
			v             model.Vendor
			code, country sql.NullString
			level         string
		)
		if err := rows.Scan(&v.ID, &v.TenantID, &v.Name, &code, &country,
			&v.RiskScore, &level, &v.Approved, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Code = code.String
		v.Country = country.String
		v.RiskLevel = model.RiskLevel(level)
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// CountVendors returns the vendor total across all tenants.
func (s *Store) CountVendors(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vendors`).Scan(&n)
	return n, err
}

// CountEvidence returns the evidence document total across all tenants.
func (s *Store) CountEvidence(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence`).Scan(&n)
	return n, err
}

// CreateEvidence records an uploaded document. The ingestion pipeline that
// extracts text lives outside this service; evidence normally arrives
// already processed.
func (s *Store) CreateEvidence(ctx context.Context, ev model.Evidence) (model.Evidence, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Status == "" {
		ev.Status = model.EvidencePending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence
			(id, tenant_id, filename, content_hash, extracted_text,
			 status, error_message, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.TenantID, ev.Filename, ev.ContentHash, ev.ExtractedText,
		string(ev.Status), derefOrNil(ev.ErrorMessage), derefOrNil(ev.ProcessedAt),
		ev.CreatedAt)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("create evidence: %w", err)
	}
	return ev, nil
}

// GetEvidence loads a tenant's evidence document. Scoping by tenant in the
// query keeps cross-tenant reads structurally impossible.
func (s *Store) GetEvidence(ctx context.Context, tenantID, id string) (model.Evidence, error) {
	var (
		ev        model.Evidence
		status    string
		errMsg    sql.NullString
		processed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, filename, content_hash, extracted_text,
		       status, error_message, processed_at, created_at
		FROM evidence WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&ev.ID, &ev.TenantID, &ev.Filename, &ev.ContentHash, &ev.ExtractedText,
			&status, &errMsg, &processed, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Evidence{}, ErrEvidenceNotFound
	}
	if err != nil {
		return model.Evidence{}, err
	}
	ev.Status = model.EvidenceStatus(status)
	ev.ErrorMessage = strPtr(errMsg)
	ev.ProcessedAt = timePtr(processed)
	return ev, nil
}

// SetEvidenceStatus moves an evidence document through the ingestion state
// machine. Processed evidence gets a processed_at timestamp.
func (s *Store) SetEvidenceStatus(ctx context.Context, id string, status model.EvidenceStatus, errMsg *string) error {
	var processedAt any
	if status == model.EvidenceProcessed {
		processedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence
		SET status = $1, error_message = $2,
		    processed_at = COALESCE($3, processed_at)
		WHERE id = $4`,
		string(status), derefOrNil(errMsg), processedAt, id)
	if err != nil {
		return fmt.Errorf("set evidence status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEvidenceNotFound
	}
	return nil
}
