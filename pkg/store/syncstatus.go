package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pharmaforge/forge/pkg/model"
)

const maxSyncErrorLen = 500

// SyncUpdate carries the outcome of one sync run for one source.
type SyncUpdate struct {
	Success      bool
	ErrorMessage *string
	HTTPStatus   *int
	ItemsFetched int
	ItemsSaved   int
}

// UpdateSyncStatus upserts the per-source telemetry row. Telemetry must
// never mask the sync outcome, so persistence errors are logged and
// swallowed; the returned snapshot reflects the intended write either way.
func (s *Store) UpdateSyncStatus(ctx context.Context, source string, upd SyncUpdate) model.SyncStatus {
	now := time.Now().UTC()

	status := model.SyncStatus{
		Source:         source,
		LastRunAt:      now,
		LastHTTPStatus: upd.HTTPStatus,
		ItemsFetched:   upd.ItemsFetched,
		ItemsSaved:     upd.ItemsSaved,
	}
	if upd.Success {
		status.LastSuccessAt = &now
	} else {
		status.LastErrorAt = &now
		msg := ""
		if upd.ErrorMessage != nil {
			msg = *upd.ErrorMessage
		}
		if len(msg) > maxSyncErrorLen {
			msg = msg[:maxSyncErrorLen]
		}
		status.LastErrorMessage = &msg
	}

	// A success clears the error fields; an error keeps the previous
	// success timestamp for staleness reporting.
	if !upd.Success {
		if prev, err := s.GetSyncStatus(ctx, source); err == nil && prev != nil {
			status.LastSuccessAt = prev.LastSuccessAt
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_status
			(source, last_run_at, last_success_at, last_error_at,
			 last_error_message, last_http_status, items_fetched, items_saved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_success_at = excluded.last_success_at,
			last_error_at = excluded.last_error_at,
			last_error_message = excluded.last_error_message,
			last_http_status = excluded.last_http_status,
			items_fetched = excluded.items_fetched,
			items_saved = excluded.items_saved`,
		source, status.LastRunAt, derefOrNil(status.LastSuccessAt),
		derefOrNil(status.LastErrorAt), derefOrNil(status.LastErrorMessage),
		derefOrNil(status.LastHTTPStatus), status.ItemsFetched, status.ItemsSaved,
	)
	if err != nil {
		s.logger.Error("sync status upsert failed", "source", source, "error", err)
	}
	return status
}

// GetSyncStatus returns the telemetry row for one source, or nil if the
// source has never been synced.
func (s *Store) GetSyncStatus(ctx context.Context, source string) (*model.SyncStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, last_run_at, last_success_at, last_error_at,
		       last_error_message, last_http_status, items_fetched, items_saved
		FROM sync_status WHERE source = $1`, source)

	status, err := scanSyncStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// ListSyncStatuses returns all telemetry rows ordered by source id.
func (s *Store) ListSyncStatuses(ctx context.Context) ([]model.SyncStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, last_run_at, last_success_at, last_error_at,
		       last_error_message, last_http_status, items_fetched, items_saved
		FROM sync_status ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []model.SyncStatus
	for rows.Next() {
		status, err := scanSyncStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncStatus(row rowScanner) (model.SyncStatus, error) {
	var (
		status         model.SyncStatus
		success, errAt sql.NullTime
		errMsg         sql.NullString
		httpStatus     sql.NullInt64
	)
	err := row.Scan(&status.Source, &status.LastRunAt, &success, &errAt,
		&errMsg, &httpStatus, &status.ItemsFetched, &status.ItemsSaved)
	if err != nil {
		return status, err
	}
	status.LastSuccessAt = timePtr(success)
	status.LastErrorAt = timePtr(errAt)
	status.LastErrorMessage = strPtr(errMsg)
	status.LastHTTPStatus = intPtr(httpStatus)
	return status, nil
}
