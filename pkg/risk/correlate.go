package risk

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/pharmaforge/forge/pkg/model"
)

const (
	maxVendorCandidates    = 10
	maxUnmatchedCandidates = 5
	maxTopItems            = 5
	topItemTitleLen        = 100
)

// MatchBasisText marks a candidate matched against the vendor registry;
// MatchBasisUnmatched marks a retained candidate with no registry entry.
const (
	MatchBasisText      = "text_content"
	MatchBasisUnmatched = "unmatched_candidate"
)

// VendorMatch links an extracted company-name candidate to the vendor
// registry, or records it as an unmatched candidate.
type VendorMatch struct {
	VendorID   *string          `json:"vendor_id"`
	Name       string           `json:"name"`
	MatchBasis string           `json:"match_basis"`
	RiskScore  *int             `json:"risk_score"`
	RiskLevel  *model.RiskLevel `json:"risk_level"`
}

// SourceStatus is one row of the snapshot's feed-source table.
type SourceStatus struct {
	Source        string  `json:"source"`
	LastSuccessAt *string `json:"last_success_at"`
	Healthy       bool    `json:"healthy"`
}

// TopItem is one of the most recent feed items embedded in the snapshot.
type TopItem struct {
	ExternalID  string         `json:"external_id"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Category    model.Category `json:"category"`
	PublishedAt *string        `json:"published_at"`
}

// Snapshot captures the watchtower state at correlation time.
type Snapshot struct {
	TotalFeedItems int            `json:"total_feed_items"`
	ActiveAlerts   int            `json:"active_alerts"`
	SourcesStatus  []SourceStatus `json:"sources_status"`
	TopItems       []TopItem      `json:"top_items"`
	Timestamp      string         `json:"timestamp"`
}

// Correlation ties evidence and findings to the supply-chain picture.
type Correlation struct {
	EvidenceID           string        `json:"evidence_id"`
	WatchtowerSnapshot   Snapshot      `json:"watchtower_snapshot"`
	VendorMatches        []VendorMatch `json:"vendor_matches"`
	Narrative            []string      `json:"narrative"`
	CorrelationTimestamp string        `json:"correlation_timestamp"`
}

// Canonical serializes the correlation through JCS (RFC 8785) so identical
// inputs always produce byte-identical snapshots.
func (c Correlation) Canonical() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// CorrelationInput is everything the builder needs, gathered up front so the
// builder itself stays pure. Now is injected for determinism.
type CorrelationInput struct {
	Evidence       model.Evidence
	Findings       []model.Finding
	Vendors        []model.Vendor
	TotalFeedItems int
	ActiveAlerts   int
	RecentItems    []model.FeedItem
	SyncStatuses   []model.SyncStatus
	Now            time.Time
}

// BuildCorrelation assembles the correlation output. Same inputs, same
// output, byte for byte.
func BuildCorrelation(in CorrelationInput) Correlation {
	snapshot := Snapshot{
		TotalFeedItems: in.TotalFeedItems,
		ActiveAlerts:   in.ActiveAlerts,
		Timestamp:      in.Now.UTC().Format(time.RFC3339),
	}
	for _, st := range in.SyncStatuses {
		row := SourceStatus{
			Source:  st.Source,
			Healthy: st.LastErrorAt == nil || (st.LastSuccessAt != nil && st.LastSuccessAt.After(*st.LastErrorAt)),
		}
		if st.LastSuccessAt != nil {
			s := st.LastSuccessAt.UTC().Format(time.RFC3339)
			row.LastSuccessAt = &s
		}
		snapshot.SourcesStatus = append(snapshot.SourcesStatus, row)
	}
	for i, item := range in.RecentItems {
		if i >= maxTopItems {
			break
		}
		top := TopItem{
			ExternalID: item.ExternalID,
			Source:     item.Source,
			Title:      truncate(item.Title, topItemTitleLen),
			Category:   item.Category,
		}
		if item.PublishedAt != nil {
			s := item.PublishedAt.UTC().Format(time.RFC3339)
			top.PublishedAt = &s
		}
		snapshot.TopItems = append(snapshot.TopItems, top)
	}

	candidates := extractVendorCandidates(in.Evidence.ExtractedText, in.Evidence.Filename, in.Findings)
	matches := matchVendors(candidates, in.Vendors)

	return Correlation{
		EvidenceID:           in.Evidence.ID,
		WatchtowerSnapshot:   snapshot,
		VendorMatches:        matches,
		Narrative:            buildNarrative(in.Findings, in.ActiveAlerts, in.TotalFeedItems, matches),
		CorrelationTimestamp: in.Now.UTC().Format(time.RFC3339),
	}
}

var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+(?:Pharma|Labs?|Laboratories|Inc\.?|Corp\.?|LLC|Ltd\.?))\b`),
	regexp.MustCompile(`\b([A-Z][A-Z]+\s+(?:Pharma|Labs?|Laboratories|Inc\.?|Corp\.?|LLC|Ltd\.?))\b`),
}

var filenameSplitRe = regexp.MustCompile(`[-_\s]+`)

// extractVendorCandidates pulls company-name candidates from the evidence
// text, the filename, and any finding entities. First occurrence wins so the
// candidate order is stable.
func extractVendorCandidates(text, filename string, findings []model.Finding) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		candidates = append(candidates, c)
	}

	for _, pattern := range companyPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}

	base := strings.TrimSuffix(strings.TrimSuffix(filename, ".pdf"), ".txt")
	for _, part := range filenameSplitRe.Split(base, -1) {
		if len(part) > 3 && part[0] >= 'A' && part[0] <= 'Z' {
			add(part)
		}
	}

	for _, f := range findings {
		for _, entity := range f.Entities {
			add(entity)
		}
	}

	if len(candidates) > maxVendorCandidates {
		candidates = candidates[:maxVendorCandidates]
	}
	return candidates
}

// matchVendors matches candidates against the registry by case-insensitive
// substring in either direction, then retains a few unmatched candidates as
// potential vendors.
func matchVendors(candidates []string, vendors []model.Vendor) []VendorMatch {
	var matches []VendorMatch
	matched := make(map[string]bool)

	for _, v := range vendors {
		vendorLower := strings.ToLower(v.Name)
		for _, candidate := range candidates {
			candLower := strings.ToLower(candidate)
			if !strings.Contains(vendorLower, candLower) && !strings.Contains(candLower, vendorLower) {
				continue
			}
			if matched[v.ID] {
				continue
			}
			matched[v.ID] = true
			id := v.ID
			score := v.RiskScore
			level := v.RiskLevel
			matches = append(matches, VendorMatch{
				VendorID:   &id,
				Name:       v.Name,
				MatchBasis: MatchBasisText,
				RiskScore:  &score,
				RiskLevel:  &level,
			})
		}
	}

	limit := len(candidates)
	if limit > maxUnmatchedCandidates {
		limit = maxUnmatchedCandidates
	}
	for _, candidate := range candidates[:limit] {
		if len(candidate) <= 3 {
			continue
		}
		already := false
		for _, vm := range matches {
			if strings.Contains(strings.ToLower(vm.Name), strings.ToLower(candidate)) {
				already = true
				break
			}
		}
		if !already {
			matches = append(matches, VendorMatch{
				Name:       candidate,
				MatchBasis: MatchBasisUnmatched,
			})
		}
	}
	return matches
}

func buildNarrative(findings []model.Finding, activeAlerts, totalFeedItems int, matches []VendorMatch) []string {
	var narrative []string

	high := 0
	for _, f := range findings {
		if f.Severity == model.SeverityHigh {
			high++
		}
	}
	if high > 0 {
		narrative = append(narrative,
			fmt.Sprintf("🔴 %d HIGH severity finding(s) require immediate attention.", high))
	}

	if activeAlerts > 0 {
		narrative = append(narrative,
			fmt.Sprintf("⚠️ %d active Watchtower alert(s) may indicate supply chain exposure.", activeAlerts))
	}

	var matchedCount, highRisk int
	for _, vm := range matches {
		if vm.VendorID == nil {
			continue
		}
		matchedCount++
		if vm.RiskLevel != nil && (*vm.RiskLevel == model.RiskHigh || *vm.RiskLevel == model.RiskCritical) {
			highRisk++
		}
	}
	if matchedCount > 0 {
		if highRisk > 0 {
			narrative = append(narrative,
				fmt.Sprintf("🚨 %d matched vendor(s) flagged as high/critical risk.", highRisk))
		} else {
			narrative = append(narrative,
				fmt.Sprintf("✓ %d vendor(s) identified and tracked in your vendor registry.", matchedCount))
		}
	}

	if totalFeedItems > 0 {
		narrative = append(narrative,
			fmt.Sprintf("📡 Watchtower is monitoring %d FDA feed item(s) for correlation.", totalFeedItems))
	}

	if len(narrative) == 0 {
		narrative = append(narrative,
			"No significant correlations detected. Consider uploading more evidence or syncing Watchtower feeds.")
	}
	return narrative
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
