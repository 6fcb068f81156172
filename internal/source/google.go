package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/config"
	"github.com/teemow/calmerge/internal/logging"
)

// GoogleStore reads one Google Calendar. Events are listed with recurring
// series already expanded by the API; busy ranges come from freebusy.query.
type GoogleStore struct {
	svc    *gcal.Service
	src    config.GoogleSource
	users  *Directory
	logger *slog.Logger
}

// NewGoogleStore creates a store for src on top of an authorized HTTP
// client. Extra options are passed to the Calendar service constructor.
func NewGoogleStore(ctx context.Context, src config.GoogleSource, client *http.Client, users *Directory, logger *slog.Logger, opts ...option.ClientOption) (*GoogleStore, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	if src.CalendarID == "" {
		src.CalendarID = "primary"
	}
	if users == nil {
		users = NewDirectory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleStore{
		svc:    svc,
		src:    src,
		users:  users,
		logger: logger,
	}, nil
}

func (s *GoogleStore) listEvents(ctx context.Context, from, to time.Time) ([]calendar.UserEvent, error) {
	out := make([]calendar.UserEvent, 0)
	call := s.svc.Events.List(s.src.CalendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item == nil || item.Status == "cancelled" {
				continue
			}
			ev, ok := s.toUserEvent(item)
			if !ok {
				s.logger.Debug("skipping google event without times", logging.Source(s.src.Name), slog.String("event_id", item.Id))
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events of %s: %w", s.src.CalendarID, err)
	}
	return out, nil
}

func (s *GoogleStore) toUserEvent(item *gcal.Event) (calendar.UserEvent, bool) {
	start, ok := parseEventTime(item.Start)
	if !ok {
		return calendar.UserEvent{}, false
	}
	end, ok := parseEventTime(item.End)
	if !ok {
		end = start
	}

	ev := calendar.UserEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		StartAt:     start,
		EndAt:       end,
	}
	if item.EventType != "" && item.EventType != "default" {
		ev.Type = calendar.UserEventType(item.EventType)
	}

	owner := s.src.User
	if item.Organizer != nil && item.Organizer.Email != "" && !item.Organizer.Self {
		owner = s.users.Resolve(item.Organizer.Email, item.Organizer.DisplayName)
	}
	if owner.ID != "" {
		ev.Owner = &owner
	}

	for _, a := range item.Attendees {
		if a == nil || a.Organizer || a.Resource {
			continue
		}
		u := s.users.Resolve(a.Email, a.DisplayName)
		if a.Self {
			u = s.src.User
		}
		if u.ID == "" || u.ID == owner.ID {
			continue
		}
		ev.Participants = append(ev.Participants, calendar.Participant{
			User:   u,
			Status: responseStatus(a.ResponseStatus),
		})
	}

	return ev, true
}

func parseEventTime(t *gcal.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, err == nil
	}
	if t.Date != "" {
		loc := time.UTC
		if t.TimeZone != "" {
			if l, err := time.LoadLocation(t.TimeZone); err == nil {
				loc = l
			}
		}
		parsed, err := time.ParseInLocation("2006-01-02", t.Date, loc)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func responseStatus(s string) calendar.ParticipantStatus {
	switch strings.ToLower(s) {
	case "accepted":
		return calendar.ParticipantApproved
	case "declined":
		return calendar.ParticipantDenied
	default:
		return calendar.ParticipantPending
	}
}

// UserEvents implements Store.
func (s *GoogleStore) UserEvents(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.UserEvent, error) {
	events, err := s.listEvents(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return filterUserEvents(events, viewer, from, to), nil
}

// Webinars implements Store. Google calendars have none.
func (s *GoogleStore) Webinars(context.Context, calendar.User, time.Time, time.Time) ([]calendar.WebinarRegistration, error) {
	return []calendar.WebinarRegistration{}, nil
}

// Broadcasts implements Store. Google calendars have none.
func (s *GoogleStore) Broadcasts(context.Context, calendar.User, time.Time, time.Time) ([]calendar.BroadcastSubscription, error) {
	return []calendar.BroadcastSubscription{}, nil
}

// BusyRanges implements Store. Only the calendar's own user is looked up;
// other users yield nothing from this store.
func (s *GoogleStore) BusyRanges(ctx context.Context, users []calendar.User, from, to time.Time) ([]calendar.TimeRange, error) {
	out := make([]calendar.TimeRange, 0)
	if !containsUser(users, s.src.User) {
		return out, nil
	}

	query := &gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: s.src.CalendarID}},
	}
	result, err := s.svc.Freebusy.Query(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query freebusy: %w", err)
	}

	for calID, cal := range result.Calendars {
		for _, e := range cal.Errors {
			s.logger.Warn("freebusy error", logging.Source(s.src.Name), slog.String("calendar", calID), slog.String("reason", e.Reason))
		}
		for _, busy := range cal.Busy {
			start, err := time.Parse(time.RFC3339, busy.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, busy.End)
			if err != nil {
				continue
			}
			out = append(out, calendar.TimeRange{Start: start, End: end})
		}
	}
	return out, nil
}

func containsUser(users []calendar.User, u calendar.User) bool {
	for _, candidate := range users {
		if candidate.ID == u.ID && u.ID != "" {
			return true
		}
	}
	return false
}
