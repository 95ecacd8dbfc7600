package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	appLog "calview/internal/log"
)

// Source is one calendar feed. Exactly one of URL and Path is set.
type Source struct {
	// ID identifies the calendar in config and in the API.
	ID string
	// Name is shown to users; ID is used when empty.
	Name string
	// URL is an http(s) ICS endpoint.
	URL string
	// Path is a local .ics file, read on every fetch.
	Path string
}

// location returns something safe to log for the source.
func (s Source) location() string {
	if s.Path != "" {
		return s.Path
	}
	return redactURL(s.URL)
}

// FetchResult is the body produced for one source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // body came from the disk cache (304 or a failed fetch)
}

// ErrNoCachedBody is returned when a URL source cannot be fetched and no
// earlier body has been cached.
var ErrNoCachedBody = errors.New("ics: no cached body")

// Fetcher reads calendar sources. URL sources are fetched with conditional
// requests against a disk cache that also serves as the fallback when the
// server is unreachable or failing.
type Fetcher struct {
	client    *http.Client
	cache     feedCache
	userAgent string
}

// NewFetcher returns a Fetcher caching under cacheDir, or ./var/ics-cache
// when cacheDir is empty.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client:    &http.Client{Timeout: 15 * time.Second},
		cache:     feedCache{dir: cacheDir},
		userAgent: "calview/1.0",
	}
}

// FetchAll fetches sources in order. Results hold only the sources that
// produced a body; every failure is logged and returned in errs.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) (results []FetchResult, errs []error) {
	results = make([]FetchResult, 0, len(sources))
	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", src.ID, "source", src.location())
			errs = append(errs, fmt.Errorf("ics: source %s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne produces the body of a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	switch {
	case src.Path != "":
		return f.readFile(ctx, src)
	case src.URL != "":
		return f.fetchURL(ctx, src)
	default:
		return FetchResult{}, errors.New("source has neither URL nor path")
	}
}

func (f *Fetcher) readFile(ctx context.Context, src Source) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}
	body, err := os.ReadFile(src.Path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("ics: read %s: %w", src.Path, err)
	}
	appLog.Info("ics read file", "id", src.ID, "path", src.Path, "bytes", len(body))
	return FetchResult{Source: src, Body: body}, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, src Source) (FetchResult, error) {
	entry, err := f.cache.entry(src.URL)
	if err != nil {
		return FetchResult{}, err
	}
	meta, cached := entry.load()
	logURL := redactURL(src.URL)

	// fallback serves the cached body in place of a failed fetch.
	fallback := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, errors.Join(cause, ErrNoCachedBody)
		}
		appLog.Error("ics fetch failed, using cached body", cause, "id", src.ID, "url", logURL, "cached_at", meta.UpdatedAt)
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "text/calendar")
	req.Header.Set("User-Agent", f.userAgent)
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", logURL, "etag", meta.ETag)
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(fmt.Errorf("ics: read body: %w", err))
		}
		fresh := feedMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := entry.store(fresh, body); err != nil {
			// The fresh body is still good; only the next 304 is lost.
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", logURL)
		}
		appLog.Info("ics fetched", "id", src.ID, "url", logURL, "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, fmt.Errorf("ics: 304 Not Modified: %w", ErrNoCachedBody)
		}
		appLog.Info("ics not modified", "id", src.ID, "url", logURL)
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("ics: unexpected status %s", resp.Status))
	}
}

// redactURL keeps only the scheme and host of an ICS URL, since private
// feed URLs carry their secret in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
