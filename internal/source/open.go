package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/teemow/calmerge/internal/config"
	"github.com/teemow/calmerge/internal/google"
	"github.com/teemow/calmerge/internal/instrumentation"
)

// Options carries the collaborators Open wires into every store.
type Options struct {
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// TokenProvider supplies Google OAuth tokens. Defaults to the token
	// files written by `calmerge auth`.
	TokenProvider google.TokenProvider

	// HTTPClient is used for ICS downloads.
	HTTPClient *http.Client
}

// Open builds one instrumented store per configured source and combines
// them. The returned directory holds the configured users followed by the
// users of every snapshot file.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Multi, *Directory, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TokenProvider == nil {
		opts.TokenProvider = google.NewFileTokenProvider()
	}

	users := NewDirectory(cfg.Users...)
	var stores []Store

	for _, f := range cfg.Sources.Files {
		fs, err := LoadFile(f.Name, f.Path)
		if err != nil {
			return nil, nil, err
		}
		for _, u := range fs.Users() {
			users.Add(u)
		}
		stores = append(stores, Instrument(fs, instrumentation.SourceFile, f.Name, opts.Metrics, opts.Logger))
	}

	for _, feed := range cfg.Sources.ICS {
		users.Add(feed.Owner)
	}
	for _, g := range cfg.Sources.Google {
		users.Add(g.User)
	}

	if len(cfg.Sources.ICS) > 0 {
		cacheDir := cfg.CacheDir
		if cacheDir != "" {
			cacheDir = filepath.Join(cacheDir, "ics")
		}
		fetcher := NewFetcher(cacheDir,
			WithHTTPClient(opts.HTTPClient),
			WithFetchMetrics(opts.Metrics),
			WithFetchLogger(opts.Logger),
		)
		store := NewICSStore(cfg.Sources.ICS, fetcher, users, opts.Logger)
		stores = append(stores, Instrument(store, instrumentation.SourceICS, "ics", opts.Metrics, opts.Logger))
	}

	for _, g := range cfg.Sources.Google {
		client, err := google.GetHTTPClientForAccount(ctx, opts.TokenProvider, g.Account)
		if err != nil {
			return nil, nil, fmt.Errorf("google source %s: %w", g.Name, err)
		}
		store, err := NewGoogleStore(ctx, g, client, users, opts.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("google source %s: %w", g.Name, err)
		}
		stores = append(stores, Instrument(store, instrumentation.SourceGoogle, g.Name, opts.Metrics, opts.Logger))
	}

	return NewMulti(stores...), users, nil
}
