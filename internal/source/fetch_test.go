package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/calmerge/internal/instrumentation"
)

func TestFetcher_RevalidatesWithETag(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Mar 2026 08:00:00 GMT")
		_, _ = w.Write([]byte("BEGIN:VCALENDAR"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	ctx := context.Background()

	first, err := f.Fetch(ctx, "team", srv.URL)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, "BEGIN:VCALENDAR", string(first.Body))

	second, err := f.Fetch(ctx, "team", srv.URL)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetcher_FallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("cached body"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	ctx := context.Background()

	_, err := f.Fetch(ctx, "team", srv.URL)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(ctx, "team", srv.URL)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cached body", string(res.Body))

	srv.Close()
	res, err = f.Fetch(ctx, "team", srv.URL)
	require.NoError(t, err, "network errors fall back to the cached body")
	assert.True(t, res.FromCache)
}

func TestFetcher_WithoutCache(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	f := NewFetcher("")
	for i := 0; i < 2; i++ {
		res, err := f.Fetch(context.Background(), "team", srv.URL)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	assert.Equal(t, int32(2), requests.Load())
}

func TestFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())

	_, err := f.Fetch(context.Background(), "empty", "")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "team", srv.URL)
	require.Error(t, err, "304 without a cached body is an error")
}

func TestFetcher_RejectsOversizedFeed(t *testing.T) {
	const limit = 64
	var oversized atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if oversized.Load() {
			w.Header().Set("ETag", `"big"`)
			_, _ = w.Write([]byte(strings.Repeat("X", limit+1)))
			return
		}
		w.Header().Set("ETag", `"small"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()
	ctx := context.Background()

	t.Run("no cache", func(t *testing.T) {
		oversized.Store(true)
		f := NewFetcher(t.TempDir(), WithMaxFeedSize(limit))

		res, err := f.Fetch(ctx, "team", srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 64 bytes")
		assert.Nil(t, res.Body)

		dir := f.cachePathForURL(srv.URL)
		for _, name := range []string{"body.ics", "meta.json"} {
			_, statErr := os.Stat(filepath.Join(dir, name))
			assert.True(t, os.IsNotExist(statErr), "%s must not be written", name)
		}
	})

	t.Run("falls back to cached body", func(t *testing.T) {
		oversized.Store(false)
		f := NewFetcher(t.TempDir(), WithMaxFeedSize(limit))

		first, err := f.Fetch(ctx, "team", srv.URL)
		require.NoError(t, err)

		dir := f.cachePathForURL(srv.URL)
		metaBefore, err := os.ReadFile(filepath.Join(dir, "meta.json"))
		require.NoError(t, err)

		oversized.Store(true)
		res, err := f.Fetch(ctx, "team", srv.URL)
		require.NoError(t, err)
		assert.True(t, res.FromCache)
		assert.Equal(t, first.Body, res.Body)

		body, err := os.ReadFile(filepath.Join(dir, "body.ics"))
		require.NoError(t, err)
		assert.Equal(t, first.Body, body)
		metaAfter, err := os.ReadFile(filepath.Join(dir, "meta.json"))
		require.NoError(t, err)
		assert.Equal(t, metaBefore, metaAfter)
	})

	t.Run("body at the limit is accepted", func(t *testing.T) {
		oversized.Store(false)
		f := NewFetcher("", WithMaxFeedSize(int64(len("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))))

		res, err := f.Fetch(ctx, "team", srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", string(res.Body))
	})
}

func TestFetcher_CacheFilesArePrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	_, err := f.Fetch(context.Background(), "team", srv.URL)
	require.NoError(t, err)

	dir := f.cachePathForURL(srv.URL)
	for _, name := range []string{"body.ics", "meta.json"} {
		info, err := os.Stat(dir + "/" + name)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	meta, err := f.loadCacheMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, meta.URL)
	assert.False(t, meta.UpdatedAt.IsZero())
}

func TestFetcher_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	f := NewFetcher("", WithFetchMetrics(metrics), WithHTTPClient(srv.Client()))
	_, err = f.Fetch(context.Background(), "team", srv.URL)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "source_operations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value("operation")
				assert.Equal(t, instrumentation.OperationFetch, op.AsString())
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), total)
}

func TestNormalizeFeedURL(t *testing.T) {
	assert.Equal(t, "https://example.com/cal.ics", normalizeFeedURL("webcal://example.com/cal.ics"))
	assert.Equal(t, "http://example.com/cal.ics", normalizeFeedURL("http://example.com/cal.ics"))
}
