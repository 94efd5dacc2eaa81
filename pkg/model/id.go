package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// StableExternalID derives a deterministic external_id for feed items whose
// upstream does not provide one. The same (source, url, published_at, title)
// always yields the same id, so re-ingestion deduplicates cleanly.
//
// The id is the first 32 hex characters of SHA-256 over
// "source|url|published_at_rfc3339|title", with empty strings standing in
// for absent url or date.
func StableExternalID(source string, url *string, publishedAt *time.Time, title string) string {
	parts := []string{source, "", "", title}
	if url != nil {
		parts[1] = *url
	}
	if publishedAt != nil {
		parts[2] = publishedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:32]
}
