package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/config"
)

func icsBody(events ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//calmerge//test//EN",
	}
	lines = append(lines, events...)
	lines = append(lines, "END:VCALENDAR", "")
	return []byte(strings.Join(lines, "\r\n"))
}

func vevent(props ...string) string {
	return strings.Join(append(append([]string{"BEGIN:VEVENT"}, props...), "END:VEVENT"), "\r\n")
}

var feedEvents = []string{
	vevent(
		"UID:sync@example.com",
		"DTSTAMP:20260301T000000Z",
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T093000Z",
		"SUMMARY:Sync",
		"DESCRIPTION:Weekly sync",
		"CATEGORIES:Meeting,Team",
		"ORGANIZER;CN=Alice:mailto:alice@example.com",
		"ATTENDEE;CN=Alice;PARTSTAT=ACCEPTED:mailto:alice@example.com",
		"ATTENDEE;CN=Bob;PARTSTAT=DECLINED:mailto:bob@example.com",
		"ATTENDEE;CN=Dave;PARTSTAT=NEEDS-ACTION:mailto:dave@example.com",
	),
	vevent(
		"UID:cancelled@example.com",
		"DTSTAMP:20260301T000000Z",
		"DTSTART:20260302T100000Z",
		"DTEND:20260302T110000Z",
		"STATUS:CANCELLED",
		"SUMMARY:Cancelled",
	),
	vevent(
		"DTSTAMP:20260301T000000Z",
		"DTSTART:20260302T130000Z",
		"DTEND:20260302T140000Z",
		"SUMMARY:No UID",
	),
}

func TestParseICS(t *testing.T) {
	users := NewDirectory(alice, bob)

	events, err := ParseICS(icsBody(feedEvents...), "team", carol, users, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)

	sync := events[0]
	assert.Equal(t, "sync@example.com", sync.UID)
	assert.Equal(t, "Sync", sync.Summary)
	assert.Equal(t, "Weekly sync", sync.Description)
	assert.Equal(t, calendar.UserEventTypeMeeting, sync.Type)
	assert.True(t, ts(2, 9, 0).Equal(sync.Start))
	assert.True(t, ts(2, 9, 30).Equal(sync.End))
	require.NotNil(t, sync.Owner)
	assert.Equal(t, alice, *sync.Owner)
	assert.Equal(t, []calendar.Participant{
		{User: bob, Status: calendar.ParticipantDenied},
		{User: calendar.User{ID: "dave@example.com", Email: "dave@example.com", Name: "Dave"}, Status: calendar.ParticipantPending},
	}, sync.Participants)

	noUID := events[1]
	assert.NotEmpty(t, noUID.UID)
	require.NotNil(t, noUID.Owner)
	assert.Equal(t, carol, *noUID.Owner, "events without ORGANIZER belong to the feed owner")

	again, err := ParseICS(icsBody(feedEvents...), "team", carol, users, nil)
	require.NoError(t, err)
	assert.Equal(t, noUID.UID, again[1].UID, "generated IDs are stable across parses")

	other, err := ParseICS(icsBody(feedEvents...), "other-feed", carol, users, nil)
	require.NoError(t, err)
	assert.NotEqual(t, noUID.UID, other[1].UID)
}

func TestParseICS_Errors(t *testing.T) {
	_, err := ParseICS(nil, "empty", carol, nil, nil)
	assert.Error(t, err)

	_, err = ParseICS([]byte("not a calendar"), "garbage", carol, nil, nil)
	assert.Error(t, err)
}

func TestExpand_Recurring(t *testing.T) {
	body := icsBody(
		vevent(
			"UID:daily@example.com",
			"DTSTAMP:20260301T000000Z",
			"DTSTART:20260302T090000Z",
			"DTEND:20260302T100000Z",
			"SUMMARY:Daily",
			"RRULE:FREQ=DAILY;COUNT=10",
			"EXDATE:20260304T090000Z",
		),
		vevent(
			"UID:daily@example.com",
			"DTSTAMP:20260301T000000Z",
			"RECURRENCE-ID:20260305T090000Z",
			"DTSTART:20260305T140000Z",
			"DTEND:20260305T150000Z",
			"SUMMARY:Daily (moved)",
		),
	)

	parsed, err := ParseICS(body, "team", alice, NewDirectory(alice), nil)
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	events := Expand(parsed, ts(2, 0, 0), ts(6, 23, 59), nil)

	assert.Equal(t, []string{
		"daily@example.com/20260302T090000Z",
		"daily@example.com/20260303T090000Z",
		"daily@example.com/20260305T090000Z",
		"daily@example.com/20260306T090000Z",
	}, eventIDs(events))

	moved := events[2]
	assert.Equal(t, "Daily (moved)", moved.Title)
	assert.True(t, ts(5, 14, 0).Equal(moved.StartAt))
	assert.True(t, ts(5, 15, 0).Equal(moved.EndAt))

	for _, ev := range events {
		require.NotNil(t, ev.Owner)
		assert.Equal(t, "alice", ev.Owner.ID)
		assert.Equal(t, time.Hour, ev.EndAt.Sub(ev.StartAt))
	}
}

func TestExpand_OverlappingWindowStart(t *testing.T) {
	parsed := []ParsedEvent{{
		UID:     "long",
		Summary: "Offsite",
		Start:   ts(1, 20, 0),
		End:     ts(2, 10, 0),
		RRule:   "FREQ=WEEKLY;COUNT=2",
	}}

	events := Expand(parsed, ts(2, 8, 0), ts(2, 18, 0), nil)

	require.Len(t, events, 1)
	assert.Equal(t, "long/20260301T200000Z", events[0].ID)
}

func TestExpand_CapsUnboundedRule(t *testing.T) {
	parsed := []ParsedEvent{{
		UID:   "tick",
		Start: ts(2, 0, 0),
		End:   ts(2, 0, 1),
		RRule: "FREQ=MINUTELY",
	}}

	events := Expand(parsed, ts(2, 0, 0), ts(6, 0, 0), nil)

	require.Len(t, events, maxOccurrencesPerEvent)
	assert.Equal(t, "tick/20260302T000000Z", events[0].ID)
	last := ts(2, 0, 0).Add(time.Duration(maxOccurrencesPerEvent-1) * time.Minute)
	assert.True(t, last.Equal(events[len(events)-1].StartAt))

	t.Run("window below the cap is complete", func(t *testing.T) {
		events := Expand(parsed, ts(2, 0, 0), ts(2, 1, 0), nil)
		assert.Len(t, events, 61)
	})
}

func TestExpand_SingleEvents(t *testing.T) {
	parsed := []ParsedEvent{
		{UID: "in", Start: ts(2, 9, 0), End: ts(2, 10, 0)},
		{UID: "touching", Start: ts(2, 18, 0), End: ts(2, 19, 0)},
		{UID: "out", Start: ts(3, 9, 0), End: ts(3, 10, 0)},
		{UID: "bad-rule", Start: ts(2, 11, 0), End: ts(2, 12, 0), RRule: "FREQ=SOMETIMES"},
	}

	events := Expand(parsed, ts(2, 8, 0), ts(2, 18, 0), nil)

	assert.Equal(t, []string{"in", "touching", "bad-rule"}, eventIDs(events))
}

func TestICSStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(icsBody(feedEvents...))
	}))
	defer srv.Close()

	feeds := []config.ICSFeed{{ID: "team", Name: "Team", URL: srv.URL + "/team.ics", Owner: carol}}
	store := NewICSStore(feeds, NewFetcher(t.TempDir()), NewDirectory(alice, bob, carol), nil)
	ctx := context.Background()

	events, err := store.UserEvents(ctx, bob, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"sync@example.com"}, eventIDs(events))

	events, err = store.UserEvents(ctx, carol, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "No UID", events[0].Title)

	busy, err := store.BusyRanges(ctx, []calendar.User{bob}, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, busy, "declined invitations do not block")

	busy, err = store.BusyRanges(ctx, []calendar.User{alice}, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []calendar.TimeRange{{Start: ts(2, 9, 0), End: ts(2, 9, 30)}}, normalizeRanges(busy))

	webinars, err := store.Webinars(ctx, bob, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, webinars)

	broadcasts, err := store.Broadcasts(ctx, bob, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, broadcasts)
}

func TestICSStore_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	store := NewICSStore([]config.ICSFeed{{ID: "gone", URL: srv.URL}}, nil, nil, nil)

	_, err := store.UserEvents(context.Background(), alice, ts(2, 0, 0), ts(3, 0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}

// normalizeRanges drops location details so ranges compare by instant.
func normalizeRanges(in []calendar.TimeRange) []calendar.TimeRange {
	out := make([]calendar.TimeRange, len(in))
	for i, r := range in {
		out[i] = calendar.TimeRange{Start: r.Start.UTC(), End: r.End.UTC()}
	}
	return out
}
