package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pharmaforge/forge/pkg/config"
	"github.com/pharmaforge/forge/pkg/model"
)

// Adapter is the capability set of a watchtower feed source. Fetch returns
// normalized feed items; the last HTTP status observed is exposed separately
// so sync telemetry survives a failed fetch.
type Adapter interface {
	SourceID() string
	SourceName() string
	Category() model.Category
	CacheKey() string
	CacheTTL() time.Duration
	Fetch(ctx context.Context) ([]model.FeedItem, error)
	LastHTTPStatus() *int
}

// baseAdapter carries the shared identity and telemetry plumbing.
type baseAdapter struct {
	profile config.SourceProfile
	fetcher *Fetcher

	mu         sync.Mutex
	lastStatus *int
}

func (b *baseAdapter) SourceID() string { return b.profile.ID }

func (b *baseAdapter) SourceName() string { return b.profile.Name }

func (b *baseAdapter) Category() model.Category { return model.Category(b.profile.Category) }

func (b *baseAdapter) CacheKey() string { return "watchtower:cache:" + b.profile.ID }

func (b *baseAdapter) CacheTTL() time.Duration { return b.profile.CacheTTL() }

// LastHTTPStatus returns the status code of the most recent upstream
// response, or nil before the first exchange completes.
func (b *baseAdapter) LastHTTPStatus() *int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastStatus == nil {
		return nil
	}
	v := *b.lastStatus
	return &v
}

func (b *baseAdapter) setStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastStatus = &code
}

// Build constructs the adapter for a source profile based on its category.
func Build(profile config.SourceProfile, fetcher *Fetcher) (Adapter, error) {
	switch model.Category(profile.Category) {
	case model.CategoryRecall:
		return &RecallsAdapter{baseAdapter: baseAdapter{profile: profile, fetcher: fetcher}}, nil
	case model.CategoryShortage:
		return &ShortagesAdapter{baseAdapter: baseAdapter{profile: profile, fetcher: fetcher}}, nil
	case model.CategoryWarningLetter:
		return &WarningLettersAdapter{baseAdapter: baseAdapter{profile: profile, fetcher: fetcher}}, nil
	default:
		return nil, fmt.Errorf("no adapter for category %q (source %q)", profile.Category, profile.ID)
	}
}

// BuildAll constructs adapters for every profile, enabled or not; the sync
// engine filters on Enabled when iterating.
func BuildAll(profiles []config.SourceProfile, fetcher *Fetcher) (map[string]Adapter, error) {
	adapters := make(map[string]Adapter, len(profiles))
	for _, p := range profiles {
		a, err := Build(p, fetcher)
		if err != nil {
			return nil, err
		}
		adapters[p.ID] = a
	}
	return adapters, nil
}
