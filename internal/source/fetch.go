package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teemow/calmerge/internal/instrumentation"
	"github.com/teemow/calmerge/internal/logging"
)

const defaultFetchTimeout = 15 * time.Second

// DefaultMaxFeedSize bounds a single ICS download.
const DefaultMaxFeedSize = 16 << 20

// FetchResult is the body of one feed download.
type FetchResult struct {
	Body      []byte
	FromCache bool // true when the body came from disk after a 304 or a failed request
}

// cacheEntry holds HTTP validators for one feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds, revalidating with ETag and Last-Modified
// against a disk cache. A Fetcher with an empty cache directory always
// downloads the full body.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	maxSize  int64
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxFeedSize sets the largest accepted feed body in bytes
// (default DefaultMaxFeedSize). Larger feeds are rejected, never truncated.
func WithMaxFeedSize(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithFetchMetrics records every download as a "fetch" source operation.
func WithFetchMetrics(m *instrumentation.Metrics) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithFetchLogger sets the logger. The default is slog.Default().
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher that caches under cacheDir.
func NewFetcher(cacheDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: defaultFetchTimeout},
		cacheDir: cacheDir,
		maxSize:  DefaultMaxFeedSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads one feed. On network errors and non-2xx responses it
// falls back to the cached body when there is one.
func (f *Fetcher) Fetch(ctx context.Context, feedID, rawURL string) (res FetchResult, err error) {
	start := time.Now()
	ctx, span := instrumentation.StartSourceSpan(ctx, instrumentation.SourceICS, instrumentation.OperationFetch,
		instrumentation.NewSpanAttributeBuilder().WithSourceName(feedID).Build()...)
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
		f.metrics.RecordSourceOperation(ctx, instrumentation.SourceICS, instrumentation.OperationFetch, status, time.Since(start))
	}()

	if rawURL == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}
	target := normalizeFeedURL(rawURL)
	logger := f.logger.With(logging.Source(feedID), logging.URL(rawURL))

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(target)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return FetchResult{}, fmt.Errorf("failed to create feed cache: %w", err)
		}
		meta, _ = f.loadCacheMeta(cachePath)
		cachedBody, _ = f.loadCacheBody(cachePath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to build request: %w", err)
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	logger.Debug("ics fetch start")

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			logger.Warn("ics fetch failed, using cached body", logging.Err(err))
			return FetchResult{Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("failed to fetch feed %s: %w", feedID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, fmt.Errorf("feed %s: 304 Not Modified without a cached body", feedID)
		}
		logger.Debug("ics feed not modified")
		return FetchResult{Body: cachedBody, FromCache: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
		if err != nil {
			return FetchResult{}, fmt.Errorf("failed to read feed %s: %w", feedID, err)
		}
		if int64(len(body)) > f.maxSize {
			// Oversized bodies are neither returned nor cached.
			if len(cachedBody) > 0 {
				logger.Warn("ics feed too large, using cached body", slog.Int64("max_bytes", f.maxSize))
				return FetchResult{Body: cachedBody, FromCache: true}, nil
			}
			return FetchResult{}, fmt.Errorf("feed %s exceeds %d bytes", feedID, f.maxSize)
		}
		if cachePath != "" {
			entry := cacheEntry{
				URL:          target,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := f.saveCache(cachePath, entry, body); err != nil {
				logger.Warn("ics cache save failed", logging.Err(err))
			}
		}
		logger.Debug("ics fetch success", slog.Int("bytes", len(body)))
		return FetchResult{Body: body}, nil

	default:
		if len(cachedBody) > 0 {
			logger.Warn("ics fetch returned non-OK status, using cached body", slog.Int("http_status", resp.StatusCode))
			return FetchResult{Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("feed %s: unexpected status %s", feedID, resp.Status)
	}
}

// normalizeFeedURL maps webcal:// subscriptions to https.
func normalizeFeedURL(u string) string {
	if rest, ok := strings.CutPrefix(u, "webcal://"); ok {
		return "https://" + rest
	}
	return u
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

// saveCache writes the body before the metadata so validators never point
// at a missing body.
func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
