package provider

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// fdaDateLayouts covers the date shapes the FDA emits across its JSON APIs
// and HTML pages.
var fdaDateLayouts = []string{
	"01/02/2006",          // 01/15/2026
	"2006-01-02",          // 2026-01-15
	"20060102",            // 20260115
	"January 2, 2006",     // January 15, 2026
	"Jan 2, 2006",         // Jan 15, 2026
	"2-Jan-2006",          // 15-Jan-2026
	"2006-01-02T15:04:05", // ISO without zone
	time.RFC3339,
}

var usDateRe = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)

// parseFlexibleDate parses a date in any of the known FDA formats, falling
// back to extracting an embedded m/d/Y. Returns nil when nothing parses.
func parseFlexibleDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range fdaDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if m := usDateRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}
	return nil
}

// parseRSSDate handles the pubDate shapes seen in RSS and Atom feeds.
func parseRSSDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
