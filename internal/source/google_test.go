package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/config"
)

const eventsPage1 = `{
  "nextPageToken": "p2",
  "items": [
    {
      "id": "sync",
      "summary": "Sync",
      "status": "confirmed",
      "start": {"dateTime": "2026-03-02T09:00:00Z"},
      "end": {"dateTime": "2026-03-02T09:30:00Z"},
      "organizer": {"email": "alice@example.com", "self": true},
      "attendees": [
        {"email": "alice@example.com", "organizer": true, "self": true, "responseStatus": "accepted"},
        {"email": "bob@example.com", "responseStatus": "accepted"},
        {"email": "room-1@resource.calendar.google.com", "resource": true, "responseStatus": "accepted"}
      ]
    },
    {
      "id": "dropped",
      "status": "cancelled",
      "start": {"dateTime": "2026-03-02T10:00:00Z"},
      "end": {"dateTime": "2026-03-02T11:00:00Z"}
    }
  ]
}`

const eventsPage2 = `{
  "items": [
    {
      "id": "invite",
      "summary": "Vendor call",
      "eventType": "default",
      "start": {"dateTime": "2026-03-02T14:00:00+01:00"},
      "end": {"dateTime": "2026-03-02T15:00:00+01:00"},
      "organizer": {"email": "carol@example.com", "displayName": "Carol"},
      "attendees": [
        {"email": "carol@example.com", "organizer": true, "responseStatus": "accepted"},
        {"email": "alice@example.com", "self": true, "responseStatus": "tentative"},
        {"email": "bob@example.com", "responseStatus": "declined"}
      ]
    },
    {
      "id": "ooo",
      "summary": "Out of office",
      "eventType": "outOfOffice",
      "start": {"date": "2026-03-03"},
      "end": {"date": "2026-03-04"},
      "organizer": {"email": "alice@example.com", "self": true}
    }
  ]
}`

func newGoogleTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "p2" {
			_, _ = w.Write([]byte(eventsPage2))
			return
		}
		_, _ = w.Write([]byte(eventsPage1))
	})
	mux.HandleFunc("/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		var req gcal.FreeBusyRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if assert.Len(t, req.Items, 1) {
			assert.Equal(t, "primary", req.Items[0].Id)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calendars": {"primary": {"busy": [
			{"start": "2026-03-02T09:00:00Z", "end": "2026-03-02T09:30:00Z"},
			{"start": "2026-03-02T13:00:00Z", "end": "2026-03-02T14:00:00Z"}
		]}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGoogleStore(t *testing.T, srv *httptest.Server) *GoogleStore {
	t.Helper()
	src := config.GoogleSource{Name: "work", Account: "work", User: alice}
	store, err := NewGoogleStore(context.Background(), src, srv.Client(), NewDirectory(alice, bob), nil,
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return store
}

func TestGoogleStore_UserEvents(t *testing.T) {
	store := newGoogleStore(t, newGoogleTestServer(t))
	ctx := context.Background()

	events, err := store.UserEvents(ctx, alice, ts(2, 0, 0), ts(4, 0, 0))
	require.NoError(t, err)
	require.Equal(t, []string{"sync", "invite", "ooo"}, eventIDs(events))

	sync := events[0]
	require.NotNil(t, sync.Owner)
	assert.Equal(t, alice, *sync.Owner)
	assert.Equal(t, []calendar.Participant{{User: bob, Status: calendar.ParticipantApproved}}, sync.Participants)
	assert.Empty(t, sync.Type)

	invite := events[1]
	require.NotNil(t, invite.Owner)
	assert.Equal(t, calendar.User{ID: "carol@example.com", Email: "carol@example.com", Name: "Carol"}, *invite.Owner)
	assert.Equal(t, []calendar.Participant{
		{User: alice, Status: calendar.ParticipantPending},
		{User: bob, Status: calendar.ParticipantDenied},
	}, invite.Participants)
	assert.True(t, ts(2, 13, 0).Equal(invite.StartAt))

	ooo := events[2]
	assert.Equal(t, calendar.UserEventType("outOfOffice"), ooo.Type)
	assert.True(t, ts(3, 0, 0).Equal(ooo.StartAt))
	assert.True(t, ts(4, 0, 0).Equal(ooo.EndAt))

	events, err = store.UserEvents(ctx, bob, ts(2, 0, 0), ts(4, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"sync", "invite"}, eventIDs(events))
}

func TestGoogleStore_BusyRanges(t *testing.T) {
	store := newGoogleStore(t, newGoogleTestServer(t))
	ctx := context.Background()

	busy, err := store.BusyRanges(ctx, []calendar.User{bob}, ts(2, 8, 0), ts(2, 20, 0))
	require.NoError(t, err)
	assert.Empty(t, busy, "only the calendar owner's availability is known")

	busy, err = store.BusyRanges(ctx, []calendar.User{bob, alice}, ts(2, 8, 0), ts(2, 20, 0))
	require.NoError(t, err)
	assert.Equal(t, []calendar.TimeRange{
		{Start: ts(2, 9, 0), End: ts(2, 9, 30)},
		{Start: ts(2, 13, 0), End: ts(2, 14, 0)},
	}, normalizeRanges(busy))
}

func TestGoogleStore_NoWebinarsOrBroadcasts(t *testing.T) {
	store := newGoogleStore(t, newGoogleTestServer(t))

	webinars, err := store.Webinars(context.Background(), alice, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, webinars)

	broadcasts, err := store.Broadcasts(context.Background(), alice, ts(2, 0, 0), ts(3, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, broadcasts)
}

func TestGoogleStore_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 401, "message": "invalid credentials"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := newGoogleStore(t, srv)

	_, err := store.UserEvents(context.Background(), alice, ts(2, 0, 0), ts(3, 0, 0))
	assert.Error(t, err)

	_, err = store.BusyRanges(context.Background(), []calendar.User{alice}, ts(2, 0, 0), ts(3, 0, 0))
	assert.Error(t, err)
}

func TestResponseStatus(t *testing.T) {
	tests := map[string]calendar.ParticipantStatus{
		"accepted":    calendar.ParticipantApproved,
		"declined":    calendar.ParticipantDenied,
		"tentative":   calendar.ParticipantPending,
		"needsAction": calendar.ParticipantPending,
		"":            calendar.ParticipantPending,
	}
	for in, want := range tests {
		assert.Equal(t, want, responseStatus(in), in)
	}
}
