package calendar

import (
	"slices"
	"time"
)

// SortByStartAt returns a new slice ordered by start time ascending.
// Items starting at the same instant keep their relative order.
func SortByStartAt(items []Item) []Item {
	sorted := slices.Clone(items)
	if sorted == nil {
		sorted = []Item{}
	}
	slices.SortStableFunc(sorted, func(a, b Item) int {
		return a.StartAt.Compare(b.StartAt)
	})
	return sorted
}

// RemoveOverlapEvents drops webinars and broadcasts that sit right next to
// a user event in a start-sorted list and cross it in time.
//
// Only the direct neighbours (k-1 and k+1) of each user event are
// considered, and neighbour positions refer to the input list. User events
// are never removed.
func RemoveOverlapEvents(items []Item) []Item {
	removed := make(map[int]bool)
	for k, item := range items {
		if item.Type != EventTypeUserEvent {
			continue
		}
		for _, n := range [2]int{k - 1, k + 1} {
			if n < 0 || n >= len(items) {
				continue
			}
			neighbour := items[n]
			if neighbour.Type == EventTypeUserEvent {
				continue
			}
			if crossesByDate(item.Interval(), neighbour.Interval()) {
				removed[n] = true
			}
		}
	}

	result := make([]Item, 0, len(items)-len(removed))
	for i, item := range items {
		if !removed[i] {
			result = append(result, item)
		}
	}
	return result
}

// crossesByDate reports whether a's start or a's end lies within b,
// bounds inclusive. It does not detect b lying strictly inside a.
func crossesByDate(a, b TimeRange) bool {
	return within(a.Start, b) || within(a.End, b)
}

func within(t time.Time, r TimeRange) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// BuildAgenda merges the viewer's user events, webinars and broadcasts
// into one start-ordered list and drops webinars/broadcasts hidden by an
// adjacent user event.
func BuildAgenda(in AgendaInput, viewer User) []Item {
	items := make([]Item, 0, len(in.UserEvents)+len(in.Webinars)+len(in.Broadcasts))
	items = append(items, NormalizeUserEvents(in.UserEvents, viewer)...)
	items = append(items, NormalizeWebinars(in.Webinars)...)
	items = append(items, NormalizeBroadcasts(in.Broadcasts)...)

	return RemoveOverlapEvents(SortByStartAt(items))
}
