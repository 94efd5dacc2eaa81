// Package watchtower is the feed ingestion engine: it drives the source
// adapters, consults the payload cache, persists normalized items, and
// maintains per-source sync telemetry. SyncOne never returns an error to
// the caller; every failure mode lands in the result and the status row.
package watchtower

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pharmaforge/forge/pkg/config"
	"github.com/pharmaforge/forge/pkg/model"
	"github.com/pharmaforge/forge/pkg/observability"
	"github.com/pharmaforge/forge/pkg/store"
	"github.com/pharmaforge/forge/pkg/watchtower/cache"
	"github.com/pharmaforge/forge/pkg/watchtower/provider"
)

// SyncResult reports the outcome of syncing one source.
type SyncResult struct {
	Source         string     `json:"source"`
	Success        bool       `json:"success"`
	ItemsFetched   int        `json:"items_fetched"`
	ItemsAdded     int        `json:"items_added"`
	Cached         bool       `json:"cached"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	LastHTTPStatus *int       `json:"last_http_status,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	LastErrorAt    *time.Time `json:"last_error_at,omitempty"`
}

// SyncBatchResult aggregates a full SyncAll pass.
type SyncBatchResult struct {
	Status           string       `json:"status"`
	Degraded         bool         `json:"degraded"`
	Results          []SyncResult `json:"results"`
	TotalItemsAdded  int          `json:"total_items_added"`
	SourcesSucceeded int          `json:"sources_succeeded"`
	SourcesFailed    int          `json:"sources_failed"`
}

// Options tunes the engine; zero values fall back to defaults.
type Options struct {
	// SyncDelay spaces consecutive sources in a SyncAll pass.
	SyncDelay time.Duration
	// SourceTimeout bounds one SyncOne end to end.
	SourceTimeout time.Duration
	// Observability is optional; nil disables span/metric capture.
	Observability *observability.Provider
	// SLOs is optional; when set, every sync outcome is recorded against
	// the sync SLO target.
	SLOs *observability.SLOTracker
}

// Engine coordinates adapters, cache, and store for the watchtower feeds.
type Engine struct {
	store    *store.Store
	cache    cache.Cache
	adapters map[string]provider.Adapter
	profiles []config.SourceProfile

	syncDelay     time.Duration
	sourceTimeout time.Duration
	obs           *observability.Provider
	slos          *observability.SLOTracker
	logger        *slog.Logger
}

// New builds an Engine over the given source profiles. Profile order is the
// stable enumeration order for SyncAll.
func New(st *store.Store, c cache.Cache, adapters map[string]provider.Adapter,
	profiles []config.SourceProfile, opts Options) *Engine {

	if c == nil {
		c = cache.Noop{}
	}
	if opts.SyncDelay <= 0 {
		opts.SyncDelay = 500 * time.Millisecond
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 60 * time.Second
	}
	return &Engine{
		store:         st,
		cache:         c,
		adapters:      adapters,
		profiles:      profiles,
		syncDelay:     opts.SyncDelay,
		sourceTimeout: opts.SourceTimeout,
		obs:           opts.Observability,
		slos:          opts.SLOs,
		logger:        slog.Default().With("component", "watchtower"),
	}
}

// EnabledSources returns the enabled source ids in enumeration order.
func (e *Engine) EnabledSources() []string {
	var ids []string
	for _, p := range e.profiles {
		if p.Enabled {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// SyncOne ingests one source. It never returns an error: unknown sources,
// fetch failures, and persistence failures all come back as a failed result,
// and the outcome is mirrored into the sync_status row.
func (e *Engine) SyncOne(ctx context.Context, sourceID string, force bool) SyncResult {
	adapter, ok := e.adapters[sourceID]
	if !ok {
		msg := "unknown source: " + sourceID
		e.logger.Warn("sync requested for unknown source", "source", sourceID)
		return SyncResult{Source: sourceID, ErrorMessage: &msg, UpdatedAt: time.Now().UTC()}
	}

	ctx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
	defer cancel()

	start := time.Now()
	var done func(error)
	if e.obs != nil {
		ctx, done = e.obs.TrackOperation(ctx, "watchtower.sync",
			observability.SyncOperation(sourceID, force)...)
	}

	result := e.syncOne(ctx, adapter, force)
	if done != nil {
		var err error
		if !result.Success && result.ErrorMessage != nil {
			err = errors.New(*result.ErrorMessage)
		}
		done(err)
	}
	if e.slos != nil {
		e.slos.Record(observability.SLOObservation{
			Operation: observability.OpSync,
			Latency:   time.Since(start),
			Success:   result.Success,
		})
	}
	return result
}

func (e *Engine) syncOne(ctx context.Context, adapter provider.Adapter, force bool) SyncResult {
	sourceID := adapter.SourceID()
	result := SyncResult{Source: sourceID}

	items, cached := e.loadItems(ctx, adapter, force)
	if items == nil && !cached {
		fetched, err := adapter.Fetch(ctx)
		if err != nil {
			msg := err.Error()
			result.ErrorMessage = &msg
			result.LastHTTPStatus = adapter.LastHTTPStatus()
			e.logger.Warn("source fetch failed", "source", sourceID, "error", err)
			return e.finish(ctx, result)
		}
		items = fetched
		if payload, err := cache.EncodeItems(items); err == nil {
			e.cache.SetEx(ctx, adapter.CacheKey(), payload, adapter.CacheTTL())
		}
	}
	result.Cached = cached
	result.ItemsFetched = len(items)
	result.LastHTTPStatus = adapter.LastHTTPStatus()

	added, err := e.store.UpsertFeedItems(ctx, items)
	result.ItemsAdded = added
	if err != nil {
		msg := "persist feed items: " + err.Error()
		result.ErrorMessage = &msg
		e.logger.Error("feed item persistence failed", "source", sourceID, "error", err)
		return e.finish(ctx, result)
	}

	result.Success = true
	e.logger.Info("source synced", "source", sourceID,
		"fetched", result.ItemsFetched, "added", result.ItemsAdded, "cached", cached)
	return e.finish(ctx, result)
}

// loadItems consults the cache unless the caller forces a live fetch. A nil
// slice with cached=false means the engine must fetch.
func (e *Engine) loadItems(ctx context.Context, adapter provider.Adapter, force bool) ([]model.FeedItem, bool) {
	if force {
		return nil, false
	}
	payload, hit := e.cache.Get(ctx, adapter.CacheKey())
	if !hit {
		return nil, false
	}
	items, ok := cache.DecodeItems(payload)
	if !ok {
		e.logger.Debug("cached payload rejected", "source", adapter.SourceID())
		return nil, false
	}
	return items, true
}

// finish mirrors the result into sync_status and copies the persisted
// timestamps back onto the result.
func (e *Engine) finish(ctx context.Context, result SyncResult) SyncResult {
	status := e.store.UpdateSyncStatus(ctx, result.Source, store.SyncUpdate{
		Success:      result.Success,
		ErrorMessage: result.ErrorMessage,
		HTTPStatus:   result.LastHTTPStatus,
		ItemsFetched: result.ItemsFetched,
		ItemsSaved:   result.ItemsAdded,
	})
	result.UpdatedAt = status.LastRunAt
	result.LastSuccessAt = status.LastSuccessAt
	result.LastErrorAt = status.LastErrorAt
	return result
}

// SyncAll syncs every enabled source in enumeration order, spacing
// consecutive sources to avoid hammering upstreams. Results keep the stable
// source order regardless of individual outcomes.
func (e *Engine) SyncAll(ctx context.Context, force bool) SyncBatchResult {
	limiter := rate.NewLimiter(rate.Every(e.syncDelay), 1)

	var batch SyncBatchResult
	for _, sourceID := range e.EnabledSources() {
		if err := limiter.Wait(ctx); err != nil {
			msg := "cancelled: " + err.Error()
			batch.Results = append(batch.Results, SyncResult{
				Source: sourceID, ErrorMessage: &msg, UpdatedAt: time.Now().UTC(),
			})
			batch.SourcesFailed++
			continue
		}
		result := e.SyncOne(ctx, sourceID, force)
		batch.Results = append(batch.Results, result)
		batch.TotalItemsAdded += result.ItemsAdded
		if result.Success {
			batch.SourcesSucceeded++
		} else {
			batch.SourcesFailed++
		}
	}

	batch.Degraded = batch.SourcesFailed > 0
	if batch.SourcesSucceeded >= 1 {
		batch.Status = "ok"
	} else {
		batch.Status = "error"
	}
	return batch
}
