package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//EN\r\nEND:VCALENDAR\r\n"

func TestFetchOne_ConditionalAndFallback(t *testing.T) {
	var (
		fail     atomic.Bool
		requests atomic.Int32
		sawETag  atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		sawETag.Store(r.Header.Get("If-None-Match"))
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(tinyICS))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/private.ics?token=secret"}
	ctx := context.Background()

	res, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, tinyICS, string(res.Body))
	assert.Equal(t, "", sawETag.Load())

	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache, "304 reuses the cached body")
	assert.Equal(t, tinyICS, string(res.Body))
	assert.Equal(t, `"v1"`, sawETag.Load())

	fail.Store(true)
	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache, "server errors fall back to the cache")
	assert.Equal(t, tinyICS, string(res.Body))

	// A fetcher with an empty cache has nothing to fall back to.
	_, err = NewFetcher(t.TempDir()).FetchOne(ctx, src)
	assert.ErrorIs(t, err, ErrNoCachedBody)

	assert.EqualValues(t, 4, requests.Load())
}

func TestFetchOne_CorruptMetaIsUnconditional(t *testing.T) {
	var sawETag atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawETag.Store(r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v2"`)
		_, _ = w.Write([]byte(tinyICS))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(t.TempDir())
	entry, err := f.cache.entry(srv.URL)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(entry.metaPath(), []byte("{not json"), 0o600))

	res, err := f.FetchOne(context.Background(), Source{ID: "remote", URL: srv.URL})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "", sawETag.Load())

	meta, body := entry.load()
	assert.Equal(t, `"v2"`, meta.ETag)
	assert.Equal(t, tinyICS, string(body))
}

func TestFetchOne_Path(t *testing.T) {
	f := NewFetcher(t.TempDir())

	res, err := f.FetchOne(context.Background(), teamSource)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, readFixture(t, "team.ics"), res.Body)

	_, err = f.FetchOne(context.Background(), Source{ID: "missing", Path: "testdata/missing.ics"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.FetchOne(ctx, teamSource)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchAll_CollectsErrors(t *testing.T) {
	f := NewFetcher(t.TempDir())

	results, errs := f.FetchAll(context.Background(), []Source{
		teamSource,
		{ID: "empty"},
		{ID: "missing", Path: "testdata/missing.ics"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "team", results[0].Source.ID)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/path/private.ics?token=abcd"))
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://user:pw@example.com/cal.ics"))
}
