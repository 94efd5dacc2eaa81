// Package provider implements the per-source watchtower adapters: one
// fetcher-and-normalizer per external regulatory feed, each returning
// canonical feed items and tracking the last HTTP status it observed.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	// UserAgent identifies watchtower traffic to upstream rate limiters.
	UserAgent = "PharmaForgeWatchtower/1.0 (+https://pharmaforge)"

	acceptHeader = "application/json, text/html, application/xml;q=0.9, */*;q=0.8"

	defaultHTTPTimeout    = 15 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultMaxRetries     = 3
	defaultBackoffBase    = 1 * time.Second

	// maxBodyBytes caps response reads; the FDA endpoints return well under
	// this, anything larger is misbehavior.
	maxBodyBytes = 8 << 20
)

// StatusError reports a non-2xx response that was not worth retrying.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, http.StatusText(e.Code))
}

// FetchResult is one successful HTTP exchange.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher is the shared resilient HTTP client for all adapters. Retries up
// to maxRetries attempts with exponential backoff (base doubling per
// attempt) on network errors, 429, and 5xx; fails fast on other 4xx.
type Fetcher struct {
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
	logger      *slog.Logger

	// sleep is injectable so tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher with the production timeouts. A zero
// requestTimeout selects the 15s default.
func NewFetcher(requestTimeout time.Duration) *Fetcher {
	if requestTimeout <= 0 {
		requestTimeout = defaultHTTPTimeout
	}
	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	return &Fetcher{
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: defaultConnectTimeout,
			},
		},
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		logger:      slog.Default().With("component", "watchtower.fetcher"),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetOnce performs a single GET with no retry. The caller owns fallback
// sequencing (the shortages adapter walks its URL list per retry round).
func (f *Fetcher) GetOnce(ctx context.Context, rawURL string, params url.Values) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		q := req.URL.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &FetchResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// GetWithRetry performs a GET with the full retry policy. Returns the final
// FetchResult when one was obtained even on error, so callers can record
// the last HTTP status for telemetry.
func (f *Fetcher) GetWithRetry(ctx context.Context, rawURL string, params url.Values) (*FetchResult, error) {
	var lastResult *FetchResult
	var lastErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		result, err := f.GetOnce(ctx, rawURL, params)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return lastResult, ctx.Err()
			}
			f.logger.Warn("fetch failed", "url", rawURL, "attempt", attempt+1, "error", err)
			if attempt < f.maxRetries-1 {
				if serr := f.sleep(ctx, f.backoff(attempt)); serr != nil {
					return lastResult, serr
				}
			}
			continue
		}
		lastResult = result

		switch {
		case result.StatusCode >= 200 && result.StatusCode < 300:
			return result, nil
		case result.StatusCode == http.StatusTooManyRequests || result.StatusCode >= 500:
			lastErr = &StatusError{Code: result.StatusCode}
			f.logger.Warn("fetch failed, retrying", "url", rawURL, "attempt", attempt+1, "status", result.StatusCode)
			if attempt < f.maxRetries-1 {
				if serr := f.sleep(ctx, f.backoff(attempt)); serr != nil {
					return lastResult, serr
				}
			}
		default:
			// Other 4xx: not transient, let the caller fall back.
			return result, &StatusError{Code: result.StatusCode}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("retries exhausted")
	}
	return lastResult, lastErr
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	return f.backoffBase * (1 << attempt)
}
