package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaforge/forge/pkg/model"
)

// CreateWorkflowRun opens a run in the running state.
func (s *Store) CreateWorkflowRun(ctx context.Context, tenantID, evidenceID string) (model.WorkflowRun, error) {
	run := model.WorkflowRun{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		EvidenceID: evidenceID,
		Status:     model.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, tenant_id, evidence_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.TenantID, run.EvidenceID, string(run.Status), run.StartedAt)
	if err != nil {
		return model.WorkflowRun{}, fmt.Errorf("create workflow run: %w", err)
	}
	return run, nil
}

// AppendFindings persists a run's findings in one transaction, minting ids.
func (s *Store) AppendFindings(ctx context.Context, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin findings batch: %w", err)
	}
	defer tx.Rollback()

	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		cfr, err := jsonText(f.CFRRefs)
		if err != nil {
			return err
		}
		citations, err := jsonText(f.Citations)
		if err != nil {
			return err
		}
		entities, err := jsonText(f.Entities)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings
				(id, run_id, evidence_id, seq, title, description, severity,
				 cfr_refs, citations, entities)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			f.ID, f.RunID, f.EvidenceID, i, f.Title, f.Description,
			string(f.Severity), cfr, citations, entities)
		if err != nil {
			return fmt.Errorf("insert finding %q: %w", f.Title, err)
		}
	}
	return tx.Commit()
}

// AttachActionPlan persists the single plan for a run. The unique run_id
// constraint enforces at most one plan per run.
func (s *Store) AttachActionPlan(ctx context.Context, plan model.ActionPlan) (model.ActionPlan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	actions, err := json.Marshal(plan.Actions)
	if err != nil {
		return model.ActionPlan{}, fmt.Errorf("marshal actions: %w", err)
	}
	owners, err := jsonText(plan.Owners)
	if err != nil {
		return model.ActionPlan{}, err
	}
	deadlines, err := jsonText(plan.Deadlines)
	if err != nil {
		return model.ActionPlan{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_plans
			(id, run_id, evidence_id, rationale, actions, owners, deadlines, correlation_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		plan.ID, plan.RunID, plan.EvidenceID, plan.Rationale,
		string(actions), owners, deadlines, string(plan.CorrelationSnapshot))
	if err != nil {
		return model.ActionPlan{}, fmt.Errorf("attach action plan: %w", err)
	}
	return plan, nil
}

// MarkRunTerminal transitions a running run to success or failed, recording
/// artifact counts. The WHERE clause guards the state machine: a run already
// terminal is never rewritten.
func (s *Store) MarkRunTerminal(ctx context.Context, runID string, status model.RunStatus,
	errMsg *string, findings, correlations, actions int) error {

	if !status.Terminal() {
		return fmt.Errorf("mark run terminal: %q is not a terminal status", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $1, completed_at = $2, error_message = $3,
		    findings_count = $4, correlations_count = $5, actions_count = $6
		WHERE id = $7 AND status = $8`,
		string(status), time.Now().UTC(), derefOrNil(errMsg),
		findings, correlations, actions, runID, string(model.RunRunning))
	if err != nil {
		return fmt.Errorf("mark run terminal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark run terminal: run %s not in running state: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetWorkflowRun loads a run scoped to its tenant.
func (s *Store) GetWorkflowRun(ctx context.Context, tenantID, runID string) (model.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, evidence_id, status, started_at, completed_at,
		       error_message, findings_count, correlations_count, actions_count
		FROM workflow_runs WHERE tenant_id = $1 AND id = $2`, tenantID, runID)
	return scanRun(row)
}

// LatestSuccessfulRun returns the most recent successful run for a piece of
// evidence, or ErrRunNotFound if none exists.
func (s *Store) LatestSuccessfulRun(ctx context.Context, tenantID, evidenceID string) (model.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, evidence_id, status, started_at, completed_at,
		       error_message, findings_count, correlations_count, actions_count
		FROM workflow_runs
		WHERE tenant_id = $1 AND evidence_id = $2 AND status = $3
		ORDER BY started_at DESC LIMIT 1`,
		tenantID, evidenceID, string(model.RunSuccess))
	return scanRun(row)
}

func scanRun(row rowScanner) (model.WorkflowRun, error) {
	var (
		run       model.WorkflowRun
		status    string
		completed sql.NullTime
		errMsg    sql.NullString
	)
	err := row.Scan(&run.ID, &run.TenantID, &run.EvidenceID, &status,
		&run.StartedAt, &completed, &errMsg,
		&run.FindingsCount, &run.CorrelationsCount, &run.ActionsCount)
	if err == sql.ErrNoRows {
		return model.WorkflowRun{}, ErrRunNotFound
	}
	if err != nil {
		return model.WorkflowRun{}, err
	}
	run.Status = model.RunStatus(status)
	run.CompletedAt = timePtr(completed)
	run.ErrorMessage = strPtr(errMsg)
	return run, nil
}

// FindingsForRun returns a run's findings in generation order.
func (s *Store) FindingsForRun(ctx context.Context, runID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, evidence_id, title, description, severity,
		       cfr_refs, citations, entities
		FROM findings WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []model.Finding
	for rows.Next() {
		var (
			f                        model.Finding
			severity                 string
			cfr, citations, entities sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.EvidenceID, &f.Title,
			&f.Description, &severity, &cfr, &citations, &entities); err != nil {
			return nil, err
		}
		f.Severity = model.Severity(severity)
		scanJSON(cfr, &f.CFRRefs)
		scanJSON(citations, &f.Citations)
		scanJSON(entities, &f.Entities)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// ActionPlanForRun returns the plan attached to a run.
func (s *Store) ActionPlanForRun(ctx context.Context, runID string) (model.ActionPlan, error) {
	var (
		plan                       model.ActionPlan
		actions, owners, deadlines sql.NullString
		snapshot                   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, evidence_id, rationale, actions, owners, deadlines, correlation_snapshot
		FROM action_plans WHERE run_id = $1`, runID).
		Scan(&plan.ID, &plan.RunID, &plan.EvidenceID, &plan.Rationale,
			&actions, &owners, &deadlines, &snapshot)
	if err == sql.ErrNoRows {
		return model.ActionPlan{}, ErrPlanNotFound
	}
	if err != nil {
		return model.ActionPlan{}, err
	}
	scanJSON(actions, &plan.Actions)
	scanJSON(owners, &plan.Owners)
	scanJSON(deadlines, &plan.Deadlines)
	plan.CorrelationSnapshot = json.RawMessage(snapshot)
	return plan, nil
}
