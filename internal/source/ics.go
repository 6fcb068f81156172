package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/config"
	"github.com/teemow/calmerge/internal/logging"
)

const maxOccurrencesPerEvent = 5000

// uidNamespace seeds the IDs generated for events without a UID.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/teemow/calmerge/ics"))

// ParsedEvent is one VEVENT before recurrence expansion.
type ParsedEvent struct {
	UID          string
	Summary      string
	Description  string
	Type         calendar.UserEventType
	Start        time.Time
	End          time.Time
	AllDay       bool
	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
	Owner        *calendar.User
	Participants []calendar.Participant
}

// ParseICS parses a feed body. Cancelled events are dropped and a broken
// VEVENT is logged and skipped. Events without ORGANIZER belong to owner;
// attendees and organizers are resolved through users.
func ParseICS(body []byte, feedID string, owner calendar.User, users *Directory, logger *slog.Logger) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if users == nil {
		users = NewDirectory()
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ICS: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}
		ev, err := parseVEvent(ve, feedID, owner, users)
		if err != nil {
			logger.Warn("skipping ics event", logging.Source(feedID), logging.Err(err))
			continue
		}
		events = append(events, ev)
	}

	logger.Debug("ics parse completed", logging.Source(feedID), logging.Count(len(events)))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, feedID string, owner calendar.User, users *Directory) (ParsedEvent, error) {
	var out ParsedEvent

	start, err := ve.GetStartAt()
	if err != nil {
		if start, err = ve.GetAllDayStartAt(); err != nil {
			return out, fmt.Errorf("invalid DTSTART: %w", err)
		}
	}
	out.Start = start

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if !strings.Contains(p.Value, "T") || strings.EqualFold(firstParam(p.ICalParameters, "VALUE"), "DATE") {
			out.AllDay = true
		}
	}

	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if end, err := ve.GetAllDayEndAt(); err == nil && out.AllDay {
		out.End = end
	} else if out.AllDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}
	if out.End.Before(out.Start) {
		return out, fmt.Errorf("DTEND %s before DTSTART %s", out.End, out.Start)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		first, _, _ := strings.Cut(p.Value, ",")
		out.Type = calendar.UserEventType(strings.ToLower(strings.TrimSpace(first)))
	}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		out.UID = p.Value
	} else {
		name := feedID + "|" + out.Summary + "|" + out.Start.UTC().Format(time.RFC3339)
		out.UID = uuid.NewSHA1(uidNamespace, []byte(name)).String()
	}

	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil && p.Value != "" {
		u := users.Resolve(p.Value, firstParam(p.ICalParameters, "CN"))
		out.Owner = &u
	} else if owner.ID != "" {
		u := owner
		out.Owner = &u
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		u := users.Resolve(p.Value, firstParam(p.ICalParameters, "CN"))
		if u.ID == "" || (out.Owner != nil && u.ID == out.Owner.ID) {
			continue
		}
		out.Participants = append(out.Participants, calendar.Participant{
			User:   u,
			Status: partStat(firstParam(p.ICalParameters, "PARTSTAT")),
		})
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := paramLocation(p.ICalParameters, out.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		loc := paramLocation(p.ICalParameters, out.Start.Location())
		if t, err := parseICSTime(p.Value, loc); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

func partStat(v string) calendar.ParticipantStatus {
	switch strings.ToUpper(v) {
	case "ACCEPTED":
		return calendar.ParticipantApproved
	case "DECLINED":
		return calendar.ParticipantDenied
	default:
		return calendar.ParticipantPending
	}
}

func firstParam(params map[string][]string, key string) string {
	if vs := params[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func paramLocation(params map[string][]string, fallback *time.Location) *time.Location {
	if tzid := firstParam(params, "TZID"); tzid != "" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// parseICSTime parses DATE and DATE-TIME values as found in EXDATE and
// RECURRENCE-ID. Floating values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// Expand turns parsed events into user events intersecting [from, to].
// Recurring events yield one user event per occurrence, with EXDATEs
// removed and RECURRENCE-ID overrides applied. Occurrence IDs are the UID
// suffixed with the UTC start.
func Expand(events []ParsedEvent, from, to time.Time, logger *slog.Logger) []calendar.UserEvent {
	if logger == nil {
		logger = slog.Default()
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	out := make([]calendar.UserEvent, 0, len(events))
	for _, ev := range events {
		switch {
		case ev.RecurrenceID != nil:
			// Overrides without a recurring master are standalone events.
			if !hasMaster(events, ev.UID) && intersects(calendar.TimeRange{Start: ev.Start, End: ev.End}, from, to) {
				out = append(out, toUserEvent(ev, ev.UID, ev.Start, ev.End))
			}
		case ev.RRule == "":
			if intersects(calendar.TimeRange{Start: ev.Start, End: ev.End}, from, to) {
				out = append(out, toUserEvent(ev, ev.UID, ev.Start, ev.End))
			}
		default:
			out = append(out, expandRecurring(ev, overrides[ev.UID], from, to, logger)...)
		}
	}
	return out
}

func hasMaster(events []ParsedEvent, uid string) bool {
	for _, ev := range events {
		if ev.UID == uid && ev.RecurrenceID == nil && ev.RRule != "" {
			return true
		}
	}
	return false
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, from, to time.Time, logger *slog.Logger) []calendar.UserEvent {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		logger.Warn("invalid RRULE, using first occurrence only", slog.String("uid", ev.UID), logging.Err(err))
		if intersects(calendar.TimeRange{Start: ev.Start, End: ev.End}, from, to) {
			return []calendar.UserEvent{toUserEvent(ev, ev.UID, ev.Start, ev.End)}
		}
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Occurrences starting up to one duration before the window may still
	// overlap it.
	duration := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	after, before := from.Add(-duration).In(loc), to.In(loc)

	var out []calendar.UserEvent
	expanded := 0
	next := set.Iterator()
	for start, ok := next(); ok; start, ok = next() {
		if start.Before(after) {
			continue
		}
		if start.After(before) {
			break
		}
		if expanded == maxOccurrencesPerEvent {
			logger.Warn("truncating recurring event", slog.String("uid", ev.UID), slog.Int("cap", maxOccurrencesPerEvent))
			break
		}
		expanded++

		id := ev.UID + "/" + start.UTC().Format("20060102T150405Z")
		if o, ok := findOverride(overrides, start); ok {
			if intersects(calendar.TimeRange{Start: o.Start, End: o.End}, from, to) {
				out = append(out, toUserEvent(o, id, o.Start, o.End))
			}
			continue
		}
		end := start.Add(duration)
		if intersects(calendar.TimeRange{Start: start, End: end}, from, to) {
			out = append(out, toUserEvent(ev, id, start, end))
		}
	}
	return out
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func toUserEvent(ev ParsedEvent, id string, start, end time.Time) calendar.UserEvent {
	out := calendar.UserEvent{
		ID:          id,
		Title:       ev.Summary,
		Description: ev.Description,
		Type:        ev.Type,
		StartAt:     start,
		EndAt:       end,
	}
	if ev.Owner != nil {
		owner := *ev.Owner
		out.Owner = &owner
	}
	if len(ev.Participants) > 0 {
		out.Participants = append([]calendar.Participant(nil), ev.Participants...)
	}
	return out
}

// ICSStore serves user events from subscribed ICS feeds. Feeds carry no
// webinars or broadcasts. Every call downloads the feeds again; the
// Fetcher's cache keeps that cheap.
type ICSStore struct {
	feeds   []config.ICSFeed
	fetcher *Fetcher
	users   *Directory
	logger  *slog.Logger
}

// NewICSStore creates a store over the given feeds.
func NewICSStore(feeds []config.ICSFeed, fetcher *Fetcher, users *Directory, logger *slog.Logger) *ICSStore {
	if fetcher == nil {
		fetcher = NewFetcher("")
	}
	if users == nil {
		users = NewDirectory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ICSStore{
		feeds:   feeds,
		fetcher: fetcher,
		users:   users,
		logger:  logger,
	}
}

func (s *ICSStore) load(ctx context.Context, from, to time.Time) ([]calendar.UserEvent, error) {
	all := make([]calendar.UserEvent, 0)
	for _, feed := range s.feeds {
		res, err := s.fetcher.Fetch(ctx, feed.ID, feed.URL)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseICS(res.Body, feed.ID, feed.Owner, s.users, s.logger)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feed.ID, err)
		}
		all = append(all, Expand(parsed, from, to, s.logger)...)
	}
	return all, nil
}

// UserEvents implements Store.
func (s *ICSStore) UserEvents(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.UserEvent, error) {
	events, err := s.load(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return filterUserEvents(events, viewer, from, to), nil
}

// Webinars implements Store. ICS feeds have none.
func (s *ICSStore) Webinars(context.Context, calendar.User, time.Time, time.Time) ([]calendar.WebinarRegistration, error) {
	return []calendar.WebinarRegistration{}, nil
}

// Broadcasts implements Store. ICS feeds have none.
func (s *ICSStore) Broadcasts(context.Context, calendar.User, time.Time, time.Time) ([]calendar.BroadcastSubscription, error) {
	return []calendar.BroadcastSubscription{}, nil
}

// BusyRanges implements Store.
func (s *ICSStore) BusyRanges(ctx context.Context, users []calendar.User, from, to time.Time) ([]calendar.TimeRange, error) {
	events, err := s.load(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return busyFrom(events, users, from, to), nil
}
