// Package source fetches the raw events calmerge merges.
//
// Every backend implements Store: FileStore reads a YAML or JSON snapshot,
// ICSStore downloads subscribed ICS feeds (with an ETag/Last-Modified disk
// cache and RRULE expansion) and GoogleStore reads a Google Calendar
// through a stored OAuth token. Multi combines them, and Instrumented adds
// spans, metrics and debug logs around any store.
//
// Open builds the whole set from a config.Config:
//
//	store, users, err := source.Open(ctx, cfg, source.Options{Metrics: provider.Metrics()})
//	if err != nil {
//		return err
//	}
//	viewer, err := users.Lookup("alice")
package source
