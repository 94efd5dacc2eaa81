package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaforge/forge/pkg/config"
	"github.com/pharmaforge/forge/pkg/fault"
	"github.com/pharmaforge/forge/pkg/model"
)

func recallsProfile(primary string, fallbacks ...string) config.SourceProfile {
	return config.SourceProfile{
		ID: "fda_recalls", Name: "FDA Drug Recalls", Category: "recall",
		Enabled: true, Required: true, URL: primary, FallbackURLs: fallbacks,
	}
}

const enforcementJSON = `{
  "results": [
    {
      "recall_number": "D-0042-2026",
      "recalling_firm": "Contoso Pharmaceuticals",
      "product_description": "Amoxicillin 500mg Capsules, 100 count bottles",
      "reason_for_recall": "Presence of foreign tablets",
      "classification": "Class II",
      "report_date": "20260110",
      "status": "Ongoing"
    },
    {
      "recalling_firm": "",
      "product_description": "",
      "report_date": "20260109"
    },
    {
      "recalling_firm": "Fabrikam Labs",
      "product_description": "Ibuprofen 200mg Tablets",
      "report_date": "20260108"
    }
  ]
}`

func TestRecallsAdapter_ParsesEnforcementJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(enforcementJSON))
	}))
	defer srv.Close()

	adapter, err := Build(recallsProfile(srv.URL), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2, "the empty record is skipped")

	first := items[0]
	assert.Equal(t, "D-0042-2026", first.ExternalID)
	assert.Equal(t, "[Class II] Recall: Amoxicillin 500mg Capsules, 100 count bottles", first.Title)
	assert.Equal(t, model.CategoryRecall, first.Category)
	require.NotNil(t, first.URL)
	assert.Contains(t, *first.URL, "accessdata.fda.gov")
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, 2026, first.PublishedAt.Year())
	require.NotNil(t, first.VendorName)
	assert.Equal(t, "Contoso Pharmaceuticals", *first.VendorName)
	require.NotNil(t, first.Summary)
	assert.Contains(t, *first.Summary, "Reason: Presence of foreign tablets")
	assert.NotEmpty(t, first.RawPayload)

	// Without a recall number the external id is synthesized.
	second := items[1]
	assert.Equal(t, "recall-Fabrikam Labs-20260108", second.ExternalID)
	assert.Nil(t, second.URL)

	status := adapter.LastHTTPStatus()
	require.NotNil(t, status)
	assert.Equal(t, http.StatusOK, *status)
}

const recallsRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>FDA Drug Recalls</title>
  <item>
    <title>Northwind Recalls One Lot of Saline Solution</title>
    <link>https://www.fda.gov/recalls/northwind-saline</link>
    <description>Due to particulate matter.</description>
    <pubDate>Mon, 12 Jan 2026 10:00:00 GMT</pubDate>
    <guid>https://www.fda.gov/recalls/northwind-saline</guid>
  </item>
</channel></rss>`

func TestRecallsAdapter_RSSFallback(t *testing.T) {
	rss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(recallsRSS))
	}))
	defer rss.Close()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer primary.Close()

	adapter, err := Build(recallsProfile(primary.URL, rss.URL), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Northwind Recalls One Lot of Saline Solution", items[0].Title)
	assert.Equal(t, "https://www.fda.gov/recalls/northwind-saline", items[0].ExternalID)
	require.NotNil(t, items[0].PublishedAt)
}

func TestRecallsAdapter_AllSourcesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter, err := Build(recallsProfile(srv.URL, srv.URL+"/rss"), newTestFetcher())
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ProviderAllSourcesFailed))

	status := adapter.LastHTTPStatus()
	require.NotNil(t, status)
	assert.Equal(t, http.StatusInternalServerError, *status)
}

func shortagesProfile(primary string, fallbacks ...string) config.SourceProfile {
	return config.SourceProfile{
		ID: "fda_shortages", Name: "FDA Drug Shortages", Category: "shortage",
		Enabled: true, Required: true, URL: primary, FallbackURLs: fallbacks,
	}
}

const shortagesJSON = `{
  "results": [
    {
      "generic_name": "Cisplatin Injection",
      "company_name": "Tailspin Pharma",
      "status": "Currently in Shortage",
      "update_date": "2026-01-10",
      "package_ndc": "0703-5748-11",
      "therapeutic_category": ["Oncology"],
      "availability": "Limited supply"
    },
    {
      "drug_name": "Saline 0.9%",
      "availability": "Resolved",
      "update_date": "01/05/2026"
    },
    {
      "company_name": "No Name Corp"
    }
  ]
}`

func TestShortagesAdapter_ParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(shortagesJSON))
	}))
	defer srv.Close()

	adapter, err := Build(shortagesProfile(srv.URL+"/shortages.json"), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2, "record without a drug name is skipped")

	first := items[0]
	assert.Equal(t, "shortage-0703-5748-11", first.ExternalID)
	assert.Equal(t, "Drug Shortage: Cisplatin Injection (Limited supply)", first.Title)
	require.NotNil(t, first.Status)
	assert.Equal(t, "current", *first.Status)
	require.NotNil(t, first.VendorName)
	assert.Equal(t, "Tailspin Pharma", *first.VendorName)
	assert.Contains(t, first.Tags, "shortage")
	assert.Contains(t, first.Tags, "Oncology")

	// No NDC: stable hash id, and an absent manufacturer stays absent.
	second := items[1]
	assert.Len(t, second.ExternalID, 32)
	assert.Nil(t, second.VendorName)
	require.NotNil(t, second.Status)
	assert.Equal(t, "resolved", *second.Status)
}

const shortagesHTML = `<html><body><table>
<tr><th>Drug</th><th>Manufacturer</th><th>Status</th><th>Posted</th></tr>
<tr>
  <td><a href="https://www.accessdata.fda.gov/scripts/drugshortages/d/42">Epinephrine Injection</a></td>
  <td>Wingtip Biologics</td>
  <td>Currently in Shortage</td>
  <td>01/12/2026</td>
</tr>
</table></body></html>`

func TestShortagesAdapter_HTMLFallback(t *testing.T) {
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(shortagesHTML))
	}))
	defer fallback.Close()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()

	adapter, err := Build(shortagesProfile(primary.URL+"/shortages.json", fallback.URL), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Drug Shortage: Epinephrine Injection", item.Title)
	require.NotNil(t, item.VendorName)
	assert.Equal(t, "Wingtip Biologics", *item.VendorName)
	require.NotNil(t, item.Status)
	assert.Equal(t, "current", *item.Status)
	require.NotNil(t, item.PublishedAt)
	assert.Equal(t, 2026, item.PublishedAt.Year())
	assert.Len(t, item.ExternalID, 32)
}

func TestShortagesAdapter_AllSourcesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter, err := Build(shortagesProfile(srv.URL+"/shortages.json"), newTestFetcher())
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ProviderAllSourcesFailed))
	assert.Contains(t, err.Error(), "503")
}

func warningLettersProfile(primary string, fallbacks ...string) config.SourceProfile {
	return config.SourceProfile{
		ID: "fda_warning_letters", Name: "FDA Warning Letters", Category: "warning_letter",
		Enabled: true, Required: true, URL: primary, FallbackURLs: fallbacks,
	}
}

const warningLettersHTML = `<html><body><table>
<tr><th>Company</th><th>Subject</th><th>Posted Date</th></tr>
<tr>
  <td><a href="/inspections-compliance/warning-letters/proseware-inc-01152026">Proseware Inc</a></td>
  <td>CGMP Violations at Manufacturing Facility</td>
  <td>01/15/2026</td>
</tr>
</table></body></html>`

func TestWarningLettersAdapter_ParsesTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(warningLettersHTML))
	}))
	defer srv.Close()

	adapter, err := Build(warningLettersProfile(srv.URL), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "wl-proseware-inc-20260115", item.ExternalID)
	assert.Equal(t, "Warning Letter: Proseware Inc", item.Title)
	require.NotNil(t, item.Summary)
	assert.Contains(t, *item.Summary, "CGMP Violations")
	require.NotNil(t, item.VendorName)
	assert.Equal(t, "Proseware Inc", *item.VendorName)
}

const warningLettersLinksOnly = `<html><body>
<p><a href="/inspections-compliance-enforcement/warning-letters/adventure-works-ltd">Adventure Works Ltd</a></p>
</body></html>`

func TestWarningLettersAdapter_LinkFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(warningLettersLinksOnly))
	}))
	defer srv.Close()

	adapter, err := Build(warningLettersProfile(srv.URL), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, strings.HasPrefix(items[0].ExternalID, "wl-adventure-works-ltd-"))
	require.NotNil(t, items[0].URL)
	assert.True(t, strings.HasPrefix(*items[0].URL, "https://www.fda.gov/"))
}

func TestAdapters_NeverEmitUnknownLiteral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Upstream explicitly says "unknown"; it must not leak through.
		_, _ = w.Write([]byte(`{"results":[{"generic_name":"Metformin","availability":"Unknown","status":"unknown"}]}`))
	}))
	defer srv.Close()

	adapter, err := Build(shortagesProfile(srv.URL+"/shortages.json"), newTestFetcher())
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Drug Shortage: Metformin", item.Title)
	assert.Nil(t, item.Status)
	assert.Nil(t, item.VendorName)
	assert.NotContains(t, item.Title, "Unknown")
}

func TestBuildAll(t *testing.T) {
	adapters, err := BuildAll(config.DefaultSources(), newTestFetcher())
	require.NoError(t, err)
	require.Len(t, adapters, 3)
	assert.Equal(t, "watchtower:cache:fda_recalls", adapters["fda_recalls"].CacheKey())

	_, err = Build(config.SourceProfile{ID: "x", Category: "bulletin", URL: "https://e"}, newTestFetcher())
	require.Error(t, err)
}
