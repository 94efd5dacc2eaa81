package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
)

// ShortagesAdapter fetches drug shortages from the openFDA shortages API,
// falling back to scraping the AccessData shortages table. Each retry round
// walks the full URL list before backing off.
type ShortagesAdapter struct {
	baseAdapter
}

var shortagesParams = url.Values{
	"limit": {"50"},
	"sort":  {"update_date:desc"},
}

const shortagesPageURL = "https://www.accessdata.fda.gov/scripts/drugshortages/default.cfm"

// maxScrapedRows bounds how much of a fallback HTML table is ingested.
const maxScrapedRows = 50

func (a *ShortagesAdapter) Fetch(ctx context.Context) ([]model.FeedItem, error) {
	allURLs := append([]string{a.profile.URL}, a.profile.FallbackURLs...)
	var lastErr error

	for attempt := 0; attempt < a.fetcher.maxRetries; attempt++ {
		for _, u := range allURLs {
			items, err := a.tryFetchURL(ctx, u)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err != nil {
				lastErr = err
				continue
			}
			if len(items) > 0 {
				return items, nil
			}
			// Got a response but no items; try the next URL.
		}
		if attempt < a.fetcher.maxRetries-1 {
			if err := a.fetcher.sleep(ctx, a.fetcher.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints returned data")
	}
	return nil, fault.New(fault.ProviderAllSourcesFailed, "drug shortages data unavailable, last error: %v", lastErr)
}

// tryFetchURL performs a single exchange against one URL and parses by
// content type: JSON first, then the HTML table.
func (a *ShortagesAdapter) tryFetchURL(ctx context.Context, u string) ([]model.FeedItem, error) {
	var params url.Values
	if strings.HasSuffix(u, ".json") {
		params = shortagesParams
	}
	result, err := a.fetcher.GetOnce(ctx, u, params)
	if err != nil {
		return nil, err
	}
	a.setStatus(result.StatusCode)
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return nil, &StatusError{Code: result.StatusCode}
	}

	contentType := strings.ToLower(result.ContentType)
	if strings.Contains(contentType, "json") || strings.HasSuffix(u, ".json") {
		if items, perr := a.parseJSON(result.Body); perr == nil {
			return items, nil
		}
	}
	if strings.Contains(contentType, "html") || strings.Contains(contentType, "text") {
		return a.parseHTML(result.Body), nil
	}

	// Unknown content type: try both parsers.
	if items, perr := a.parseJSON(result.Body); perr == nil && len(items) > 0 {
		return items, nil
	}
	return a.parseHTML(result.Body), nil
}

func (a *ShortagesAdapter) parseJSON(body []byte) ([]model.FeedItem, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	var rawResults []json.RawMessage
	for _, key := range []string{"results", "data", "shortages"} {
		if raw, ok := doc[key]; ok {
			if err := json.Unmarshal(raw, &rawResults); err != nil {
				// A single object instead of an array.
				rawResults = []json.RawMessage{raw}
			}
			break
		}
	}

	items := make([]model.FeedItem, 0, len(rawResults))
	for _, raw := range rawResults {
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		if item, ok := a.buildShortageItem(record, raw); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (a *ShortagesAdapter) buildShortageItem(record map[string]any, raw json.RawMessage) (model.FeedItem, bool) {
	genericName := firstString(record, "generic_name", "drug_name", "product_name", "name")
	if genericName == "" {
		return model.FeedItem{}, false
	}

	// Manufacturer stays absent when the upstream omits it.
	companyName := firstString(record, "company_name", "manufacturer", "labeler", "firm_name")

	rawStatus := firstString(record, "status", "availability", "shortage_status")
	status := model.NormalizeShortageStatus(rawStatus)

	publishedAt := parseFlexibleDate(firstString(record, "update_date", "updated_date", "last_update", "date"))
	if publishedAt == nil {
		publishedAt = parseFlexibleDate(firstString(record, "initial_posting_date", "initial_date"))
	}

	externalID := ""
	if ndc := firstString(record, "package_ndc", "ndc"); ndc != "" {
		externalID = "shortage-" + ndc
	} else {
		externalID = model.StableExternalID(a.SourceID(), nil, publishedAt, genericName)
	}

	title := "Drug Shortage: " + genericName
	if availability := firstString(record, "availability", "available"); availability != "" && !strings.EqualFold(availability, "unknown") {
		title += fmt.Sprintf(" (%s)", availability)
	}

	categories := stringList(record["therapeutic_category"])

	var summaryParts []string
	if companyName != "" {
		summaryParts = append(summaryParts, "Manufacturer: "+companyName)
	}
	if status != model.ShortageAbsent {
		summaryParts = append(summaryParts, "Status: "+string(status))
	}
	if len(categories) > 0 {
		summaryParts = append(summaryParts, "Category: "+strings.Join(categories, ", "))
	}
	if form := firstString(record, "dosage_form", "form"); form != "" {
		summaryParts = append(summaryParts, "Form: "+form)
	}
	if presentation := firstString(record, "presentation", "strength"); presentation != "" {
		summaryParts = append(summaryParts, "Presentation: "+presentation)
	}

	pageURL := shortagesPageURL
	item := model.FeedItem{
		Source:      a.SourceID(),
		ExternalID:  externalID,
		Title:       truncate(title, 200),
		URL:         &pageURL,
		PublishedAt: publishedAt,
		Category:    a.Category(),
		Status:      status.StatusPtr(),
		Tags:        append([]string{"shortage"}, categories...),
		RawPayload:  raw,
		IngestedAt:  time.Now().UTC(),
	}
	if companyName != "" {
		item.VendorName = &companyName
	}
	if len(summaryParts) > 0 {
		summary := truncate(strings.Join(summaryParts, ". "), 1000)
		item.Summary = &summary
	}
	return item, true
}

func (a *ShortagesAdapter) parseHTML(body []byte) []model.FeedItem {
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
	return items
}

func (a *ShortagesAdapter) buildRowItem(row []tableCell) (model.FeedItem, bool) {
	if len(row) < 2 {
		return model.FeedItem{}, false
	}

	drugName := strings.TrimSpace(row[0].Text)
	if drugName == "" {
		return model.FeedItem{}, false
	}
	drugLink := row[0].Link

	var manufacturer string
	status := model.ShortageAbsent
	var postedDate *time.Time

	for _, cell := range row[1:] {
		text := strings.TrimSpace(cell.Text)
		if d := parseFlexibleDate(text); d != nil {
			postedDate = d
			continue
		}
		if s := model.NormalizeShortageStatus(text); s != model.ShortageAbsent {
			status = s
			continue
		}
		if manufacturer == "" && len(text) > 3 {
			manufacturer = text
		}
	}

	var linkPtr *string
	if drugLink != "" {
		linkPtr = &drugLink
	}
	externalID := model.StableExternalID(a.SourceID(), linkPtr, postedDate, drugName)

	var summaryParts []string
	if manufacturer != "" {
		summaryParts = append(summaryParts, "Manufacturer: "+manufacturer)
	}
	if status != model.ShortageAbsent {
		summaryParts = append(summaryParts, "Status: "+string(status))
	}

	itemURL := drugLink
	if itemURL == "" {
		itemURL = shortagesPageURL
	}

	item := model.FeedItem{
		Source:      a.SourceID(),
		ExternalID:  externalID,
		Title:       truncate("Drug Shortage: "+drugName, 200),
		URL:         &itemURL,
		PublishedAt: postedDate,
		Category:    a.Category(),
		Status:      status.StatusPtr(),
		IngestedAt:  time.Now().UTC(),
	}
	if manufacturer != "" {
		item.VendorName = &manufacturer
	}
	if len(summaryParts) > 0 {
		summary := strings.Join(summaryParts, ". ")
		item.Summary = &summary
	}
	item.RawPayload, _ = json.Marshal(map[string]any{
		"drug_name":    drugName,
		"manufacturer": manufacturer,
		"status":       string(status),
	})
	return item, true
}

// firstString returns the first non-empty string among the given keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// stringList coerces a value that may be a string or a list of strings.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, e := range val {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
