package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
)

// WarningLettersAdapter scrapes the FDA warning letters page. There is no
// JSON API for this source; the adapter parses the letters table and falls
// back to raw anchor extraction when the page layout shifts.
type WarningLettersAdapter struct {
	baseAdapter
}

var warningLetterLinkRe = regexp.MustCompile(`(?i)href="(/inspections[^"]*warning-letters[^"]*)"[^>]*>([^<]+)</a>`)

func (a *WarningLettersAdapter) Fetch(ctx context.Context) ([]model.FeedItem, error) {
	urls := append([]string{a.profile.URL}, a.profile.FallbackURLs...)
	var lastErr error

	for _, u := range urls {
		result, err := a.fetcher.GetWithRetry(ctx, u, nil)
		if result != nil {
			a.setStatus(result.StatusCode)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			lastErr = err
			continue
		}
		if items := a.parseHTML(result.Body); len(items) > 0 {
			return items, nil
		}
		lastErr = fmt.Errorf("no warning letters parsed from %s", u)
	}
	return nil, fault.New(fault.ProviderAllSourcesFailed, "all warning letter fetch attempts failed, last error: %v", lastErr)
}

func (a *WarningLettersAdapter) parseHTML(body []byte) []model.FeedItem {
	rows := extractTableRows(body)
	if len(rows) > maxScrapedRows {
		rows = rows[:maxScrapedRows]
	}

	var items []model.FeedItem
	for _, row := range rows {
		if item, ok := a.buildRowItem(row); ok {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		return items
	}

	// Layout changed under us: salvage what the anchor pattern can find.
	return a.extractLinks(body)
}

func (a *WarningLettersAdapter) buildRowItem(row []tableCell) (model.FeedItem, bool) {
	if len(row) < 2 {
		return model.FeedItem{}, false
	}

	companyName := strings.TrimSpace(row[0].Text)
	if companyName == "" {
		return model.FeedItem{}, false
	}
	letterLink := row[0].Link

	var postedDate *time.Time
	var subject string
	for _, cell := range row[1:] {
		text := strings.TrimSpace(cell.Text)
		if m := usDateRe.FindString(text); m != "" {
			postedDate = parseFlexibleDate(m)
		} else if subject == "" && len(text) > 10 {
			subject = text
		}
	}

	item := model.FeedItem{
		Source:      a.SourceID(),
		ExternalID:  warningLetterID(companyName, postedDate),
		Title:       truncate("Warning Letter: "+companyName, 200),
		PublishedAt: postedDate,
		Category:    a.Category(),
		VendorName:  &companyName,
		IngestedAt:  time.Now().UTC(),
	}
	itemURL := letterLink
	if itemURL == "" {
		itemURL = a.profile.URL
	}
	item.URL = &itemURL
	if subject != "" {
		summary := truncate(subject, 1000)
		item.Summary = &summary
	}
	item.RawPayload, _ = json.Marshal(map[string]string{"company": companyName, "subject": subject})
	return item, true
}

func (a *WarningLettersAdapter) extractLinks(body []byte) []model.FeedItem {
	matches := warningLetterLinkRe.FindAllStringSubmatch(string(body), maxScrapedRows)

	var items []model.FeedItem
	for _, m := range matches {
		href, text := m[1], strings.TrimSpace(m[2])
		if len(text) < 3 {
			continue
		}
		u := href
		if strings.HasPrefix(href, "/") {
			u = "https://www.fda.gov" + href
		}
		now := time.Now().UTC()
		item := model.FeedItem{
			Source:      a.SourceID(),
			ExternalID:  warningLetterID(text, &now),
			Title:       truncate("Warning Letter: "+truncate(text, 150), 200),
			URL:         &u,
			PublishedAt: &now,
			Category:    a.Category(),
			IngestedAt:  now,
		}
		item.RawPayload, _ = json.Marshal(map[string]string{"text": text, "href": href})
		items = append(items, item)
	}
	return items
}

// warningLetterID builds the slug-style external id: wl-{company}-{date}.
// The posted date anchors identity; when it is unknown the fetch date
// stands in.
func warningLetterID(company string, postedDate *time.Time) string {
	date := time.Now().UTC()
	if postedDate != nil {
		date = *postedDate
	}
	slug := strings.ToLower(strings.ReplaceAll(truncate(company, 30), " ", "-"))
	return fmt.Sprintf("wl-%s-%s", slug, date.Format("20060102"))
}
