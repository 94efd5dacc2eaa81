package model

import "strings"

// ShortageStatus is the normalized drug-shortage availability state.
// ShortageAbsent represents an unknown or missing upstream status; it is
// persisted as NULL, never as a placeholder string.
type ShortageStatus string

const (
	ShortageCurrent    ShortageStatus = "current"
	ShortageResolved   ShortageStatus = "resolved"
	ShortageTerminated ShortageStatus = "terminated"
	ShortageAbsent     ShortageStatus = ""
)

// shortageStatusMap holds exact-match normalizations for upstream status
// strings. Entries mapping to ShortageAbsent are deliberate: the upstream
// sometimes emits "unknown", which must not leak through as a status.
var shortageStatusMap = map[string]ShortageStatus{
	"currently in shortage": ShortageCurrent,
	"current":               ShortageCurrent,
	"active":                ShortageCurrent,
	"ongoing":               ShortageCurrent,

	"resolved":              ShortageResolved,
	"no longer in shortage": ShortageResolved,
	"discontinued":          ShortageResolved,

	"terminated": ShortageTerminated,
	"ended":      ShortageTerminated,

	"unknown": ShortageAbsent,
	"":        ShortageAbsent,
}

// NormalizeShortageStatus maps a raw upstream status string to one of
// {current, resolved, terminated, absent}. The function is total: every
// input, however malformed, maps to exactly one of the four values.
func NormalizeShortageStatus(raw string) ShortageStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := shortageStatusMap[s]; ok {
		return mapped
	}
	// Fuzzy containment for upstream phrasing drift.
	switch {
	case strings.Contains(s, "current") || strings.Contains(s, "shortage"):
		return ShortageCurrent
	case strings.Contains(s, "resolved") || strings.Contains(s, "available"):
		return ShortageResolved
	case strings.Contains(s, "terminated") || strings.Contains(s, "ended"):
		return ShortageTerminated
	}
	return ShortageAbsent
}

// StatusPtr converts a normalized status to its persisted representation:
// nil for absent, the lowercase label otherwise.
func (s ShortageStatus) StatusPtr() *string {
	if s == ShortageAbsent {
		return nil
	}
	v := string(s)
	return &v
}
