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

// UpsertFeedItems inserts a batch of normalized feed items inside one
// transaction. Each item runs under its own savepoint: a duplicate
// (source, external_id) rolls back just that item and the batch continues,
// so re-syncing an unchanged feed is a no-op. Returns the number of rows
// actually inserted.
func (s *Store) UpsertFeedItems(ctx context.Context, items []model.FeedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin feed item batch: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range items {
		item := &items[i]
		if err := item.Validate(); err != nil {
			s.logger.Warn("skipping invalid feed item", "source", item.Source, "error", err)
			continue
		}
		ok, err := s.insertFeedItem(ctx, tx, item)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit feed item batch: %w", err)
	}
	return inserted, nil
}

func (s *Store) insertFeedItem(ctx context.Context, tx *sql.Tx, item *model.FeedItem) (bool, error) {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT feed_item`); err != nil {
		return false, fmt.Errorf("savepoint: %w", err)
	}

	tags, err := jsonText(item.Tags)
	if err != nil {
		return false, fmt.Errorf("marshal tags: %w", err)
	}
	var raw any
	if len(item.RawPayload) > 0 {
		raw = string(item.RawPayload)
	}
	ingested := item.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feed_items
			(id, source, external_id, title, url, published_at, summary,
			 category, vendor_name, status, tags, raw_payload, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.NewString(), item.Source, item.ExternalID, item.Title,
		derefOrNil(item.URL), derefOrNil(item.PublishedAt), derefOrNil(item.Summary),
		string(item.Category), derefOrNil(item.VendorName), derefOrNil(item.Status),
		tags, raw, ingested,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT feed_item`); rbErr != nil {
				return false, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			return false, nil
		}
		return false, fmt.Errorf("insert feed item %s/%s: %w", item.Source, item.ExternalID, err)
	}

	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT feed_item`); err != nil {
		return false, fmt.Errorf("release savepoint: %w", err)
	}
	return true, nil
}

// CountFeedItems returns the total number of ingested feed items.
func (s *Store) CountFeedItems(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_items`).Scan(&n)
	return n, err
}

// CountActiveAlerts counts feed items whose normalized status marks an
// ongoing condition (currently: shortages still in effect).
func (s *Store) CountActiveAlerts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feed_items WHERE status = $1`, "current").Scan(&n)
	return n, err
}

// CountFeedItemsByCategory returns per-category totals.
func (s *Store) CountFeedItemsByCategory(ctx context.Context) (map[model.Category]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM feed_items GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[model.Category(cat)] = n
	}
	return counts, rows.Err()
}

// RecentFeedItems returns the most recently published items, newest first.
// Items without a published date sort last.
func (s *Store) RecentFeedItems(ctx context.Context, limit int) ([]model.FeedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, external_id, title, url, published_at, summary,
		       category, vendor_name, status, tags, raw_payload, ingested_at
		FROM feed_items
		ORDER BY published_at DESC NULLS LAST, ingested_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.FeedItem
	for rows.Next() {
		item, err := scanFeedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanFeedItem(rows *sql.Rows) (model.FeedItem, error) {
	var (
		item                        model.FeedItem
		url, summary, vendor        sql.NullString
		status, tags, raw, category sql.NullString
		published                   sql.NullTime
	)
	err := rows.Scan(&item.Source, &item.ExternalID, &item.Title, &url, &published,
		&summary, &category, &vendor, &status, &tags, &raw, &item.IngestedAt)
	if err != nil {
		return item, err
	}
	item.URL = strPtr(url)
	item.PublishedAt = timePtr(published)
	item.Summary = strPtr(summary)
	item.Category = model.Category(category.String)
	item.VendorName = strPtr(vendor)
	item.Status = strPtr(status)
	scanJSON(tags, &item.Tags)
	if raw.Valid && raw.String != "" {
		item.RawPayload = json.RawMessage(raw.String)
	}
	return item, nil
}
