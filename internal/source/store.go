package source

import (
	"context"
	"errors"
	"time"

	"github.com/teemow/calmerge/internal/calendar"
)

// ErrUnknownUser is returned when a user ID cannot be resolved.
var ErrUnknownUser = errors.New("unknown user")

// Store fetches the raw events the agenda and slot computations run on.
// Every window is inclusive on both ends: an event is returned when it
// intersects [from, to].
type Store interface {
	// UserEvents returns the events the viewer owns or is invited to.
	UserEvents(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.UserEvent, error)

	// Webinars returns the webinars the viewer registered for.
	Webinars(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.WebinarRegistration, error)

	// Broadcasts returns the broadcasts the viewer follows.
	Broadcasts(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.BroadcastSubscription, error)

	// BusyRanges returns the intervals blocked by events of any of the
	// given users. Declined invitations do not block.
	BusyRanges(ctx context.Context, users []calendar.User, from, to time.Time) ([]calendar.TimeRange, error)
}

func intersects(r calendar.TimeRange, from, to time.Time) bool {
	return !r.End.Before(from) && !r.Start.After(to)
}

// visibleTo reports whether the viewer owns the event or is listed as a
// participant, whatever the participant's status.
func visibleTo(ev calendar.UserEvent, viewer calendar.User) bool {
	if calendar.IsOwner(ev, viewer) {
		return true
	}
	for _, p := range ev.Participants {
		if p.User.ID == viewer.ID {
			return true
		}
	}
	return false
}

// blocks reports whether the event occupies time for any of the users.
func blocks(ev calendar.UserEvent, users []calendar.User) bool {
	for _, u := range users {
		if calendar.IsOwner(ev, u) {
			return true
		}
		for _, p := range ev.Participants {
			if p.User.ID == u.ID && p.Status != calendar.ParticipantDenied {
				return true
			}
		}
	}
	return false
}

func filterUserEvents(events []calendar.UserEvent, viewer calendar.User, from, to time.Time) []calendar.UserEvent {
	out := make([]calendar.UserEvent, 0, len(events))
	for _, ev := range events {
		if visibleTo(ev, viewer) && intersects(ev.Interval(), from, to) {
			out = append(out, ev)
		}
	}
	return out
}

func busyFrom(events []calendar.UserEvent, users []calendar.User, from, to time.Time) []calendar.TimeRange {
	out := make([]calendar.TimeRange, 0)
	for _, ev := range events {
		if blocks(ev, users) && intersects(ev.Interval(), from, to) {
			out = append(out, ev.Interval())
		}
	}
	return out
}
