package provider

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
)

// RecallsAdapter fetches drug recalls from the openFDA enforcement API,
// falling back to the FDA RSS feeds when the API is unreachable or refuses.
type RecallsAdapter struct {
	baseAdapter
}

var enforcementParams = url.Values{
	"limit": {"50"},
	"sort":  {"report_date:desc"},
}

func (a *RecallsAdapter) Fetch(ctx context.Context) ([]model.FeedItem, error) {
	result, err := a.fetcher.GetWithRetry(ctx, a.profile.URL, enforcementParams)
	if result != nil {
		a.setStatus(result.StatusCode)
	}
	if err == nil {
		items, perr := a.parseJSON(result.Body)
		if perr == nil {
			return items, nil
		}
		err = fault.New(fault.ProviderParseError, "enforcement JSON: %v", perr)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Primary refused or was unreadable: walk the RSS fallbacks.
	items := a.tryRSSFallback(ctx)
	if len(items) > 0 {
		return items, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fault.New(fault.ProviderAllSourcesFailed, "all recall sources failed, last error: %v", err)
}

func (a *RecallsAdapter) tryRSSFallback(ctx context.Context) []model.FeedItem {
	for _, rssURL := range a.profile.FallbackURLs {
		result, err := a.fetcher.GetOnce(ctx, rssURL, nil)
		if err != nil {
			continue
		}
		if result.StatusCode < 200 || result.StatusCode >= 300 {
			continue
		}
		if items := a.parseRSS(result.Body); len(items) > 0 {
			return items
		}
	}
	return nil
}

type enforcementResponse struct {
	Results []json.RawMessage `json:"results"`
}

type enforcementResult struct {
	RecallNumber       string `json:"recall_number"`
	RecallingFirm      string `json:"recalling_firm"`
	ProductDescription string `json:"product_description"`
	ReasonForRecall    string `json:"reason_for_recall"`
	Classification     string `json:"classification"`
	ReportDate         string `json:"report_date"`
	Status             string `json:"status"`
}

func (a *RecallsAdapter) parseJSON(body []byte) ([]model.FeedItem, error) {
	var resp enforcementResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return nil, errors.New("no results array")
	}

	items := make([]model.FeedItem, 0, len(resp.Results))
	for _, raw := range resp.Results {
		var rec enforcementResult
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if item, ok := a.buildRecallItem(rec, raw); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (a *RecallsAdapter) buildRecallItem(rec enforcementResult, raw json.RawMessage) (model.FeedItem, bool) {
	// An item with neither a product nor a recall number carries nothing
	// usable; skip rather than fabricate a placeholder.
	if rec.ProductDescription == "" && rec.RecallNumber == "" {
		return model.FeedItem{}, false
	}

	var publishedAt *time.Time
	if len(rec.ReportDate) >= 8 {
		publishedAt = parseFlexibleDate(rec.ReportDate[:8])
	}

	product := rec.ProductDescription
	if product == "" {
		product = rec.RecallNumber
	}
	title := "Recall: " + truncate(product, 100)
	if rec.Classification != "" {
		title = fmt.Sprintf("[%s] %s", rec.Classification, title)
	}

	var summaryParts []string
	if rec.RecallingFirm != "" {
		summaryParts = append(summaryParts, "Firm: "+rec.RecallingFirm)
	}
	if rec.ReasonForRecall != "" {
		summaryParts = append(summaryParts, "Reason: "+truncate(rec.ReasonForRecall, 200))
	}
	if rec.Status != "" {
		summaryParts = append(summaryParts, "Status: "+rec.Status)
	}

	var itemURL *string
	externalID := rec.RecallNumber
	if externalID != "" {
		u := "https://www.accessdata.fda.gov/scripts/cdrh/cfdocs/cfRES/res.cfm?id=" + url.QueryEscape(rec.RecallNumber)
		itemURL = &u
	} else {
		externalID = fmt.Sprintf("recall-%s-%s", truncate(rec.RecallingFirm, 20), rec.ReportDate)
	}

	item := model.FeedItem{
		Source:      a.SourceID(),
		ExternalID:  externalID,
		Title:       truncate(title, 200),
		URL:         itemURL,
		PublishedAt: publishedAt,
		Category:    a.Category(),
		RawPayload:  raw,
		IngestedAt:  time.Now().UTC(),
	}
	if rec.RecallingFirm != "" {
		firm := rec.RecallingFirm
		item.VendorName = &firm
	}
	if len(summaryParts) > 0 {
		summary := truncate(strings.Join(summaryParts, ". "), 1000)
		item.Summary = &summary
	}
	return item, true
}

type rssFeed struct {
	Channel struct {
		Items []rssEntry `xml:"item"`
	} `xml:"channel"`
	Items []rssEntry `xml:"item"` // some feeds omit the channel wrapper
}

type rssEntry struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	ID      string `xml:"id"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Updated string `xml:"updated"`
	Links   []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

func (a *RecallsAdapter) parseRSS(body []byte) []model.FeedItem {
	body = []byte(strings.TrimPrefix(strings.TrimSpace(string(body)), "\uFEFF"))

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err == nil {
		entries := feed.Channel.Items
		if len(entries) == 0 {
			entries = feed.Items
		}
		if items := a.rssItems(entries); len(items) > 0 {
			return items
		}
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err != nil {
		return nil
	}
	return a.atomItems(atom.Entries)
}

func (a *RecallsAdapter) rssItems(entries []rssEntry) []model.FeedItem {
	var items []model.FeedItem
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		guid := strings.TrimSpace(e.GUID)
		if guid == "" {
			guid = strings.TrimSpace(e.Link)
		}
		if title == "" || guid == "" {
			continue
		}

		item := model.FeedItem{
			Source:      a.SourceID(),
			ExternalID:  guid,
			Title:       title,
			PublishedAt: parseRSSDate(e.PubDate),
			Category:    a.Category(),
			IngestedAt:  time.Now().UTC(),
		}
		if link := strings.TrimSpace(e.Link); link != "" {
			item.URL = &link
		}
		if desc := strings.TrimSpace(e.Description); desc != "" {
			summary := truncate(desc, 1000)
			item.Summary = &summary
		}
		item.RawPayload, _ = json.Marshal(e)
		items = append(items, item)
	}
	return items
}

func (a *RecallsAdapter) atomItems(entries []atomEntry) []model.FeedItem {
	var items []model.FeedItem
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		id := strings.TrimSpace(e.ID)
		link := ""
		for _, l := range e.Links {
			if l.Rel == "alternate" || link == "" {
				link = l.Href
			}
		}
		if id == "" {
			id = link
		}
		if title == "" || id == "" {
			continue
		}

		item := model.FeedItem{
			Source:     a.SourceID(),
			ExternalID: id,
			Title:      title,
			Category:   a.Category(),
			IngestedAt: time.Now().UTC(),
		}
		if link != "" {
			item.URL = &link
		}
		if updated := strings.TrimSpace(e.Updated); updated != "" {
			item.PublishedAt = parseRSSDate(updated)
		}
		summaryText := strings.TrimSpace(e.Summary)
		if summaryText == "" {
			summaryText = strings.TrimSpace(e.Content)
		}
		if summaryText != "" {
			summary := truncate(summaryText, 1000)
			item.Summary = &summary
		}
		item.RawPayload, _ = json.Marshal(e)
		items = append(items, item)
	}
	return items
}
