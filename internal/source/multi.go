package source

import (
	"context"
	"time"

	"github.com/teemow/calmerge/internal/calendar"
)

// Multi queries several stores in order and concatenates their results.
// The first failing store aborts the call.
type Multi struct {
	stores []Store
}

// NewMulti combines stores. Nil entries are dropped.
func NewMulti(stores ...Store) *Multi {
	m := &Multi{}
	for _, s := range stores {
		if s != nil {
			m.stores = append(m.stores, s)
		}
	}
	return m
}

// Len returns the number of combined stores.
func (m *Multi) Len() int {
	return len(m.stores)
}

func collect[T any](stores []Store, fetch func(Store) ([]T, error)) ([]T, error) {
	out := make([]T, 0)
	for _, s := range stores {
		items, err := fetch(s)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// UserEvents implements Store.
func (m *Multi) UserEvents(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.UserEvent, error) {
	return collect(m.stores, func(s Store) ([]calendar.UserEvent, error) {
		return s.UserEvents(ctx, viewer, from, to)
	})
}

// Webinars implements Store.
func (m *Multi) Webinars(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.WebinarRegistration, error) {
	return collect(m.stores, func(s Store) ([]calendar.WebinarRegistration, error) {
		return s.Webinars(ctx, viewer, from, to)
	})
}

// Broadcasts implements Store.
func (m *Multi) Broadcasts(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.BroadcastSubscription, error) {
	return collect(m.stores, func(s Store) ([]calendar.BroadcastSubscription, error) {
		return s.Broadcasts(ctx, viewer, from, to)
	})
}

// BusyRanges implements Store.
func (m *Multi) BusyRanges(ctx context.Context, users []calendar.User, from, to time.Time) ([]calendar.TimeRange, error) {
	return collect(m.stores, func(s Store) ([]calendar.TimeRange, error) {
		return s.BusyRanges(ctx, users, from, to)
	})
}
