package source

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/calmerge/internal/calendar"
)

// snapshot is the on-disk document read by FileStore. JSON documents are
// accepted too since YAML is a superset of JSON.
type snapshot struct {
	Users      []calendar.User     `yaml:"users"`
	UserEvents []snapshotEvent     `yaml:"user_events"`
	Webinars   []snapshotWebinar   `yaml:"webinars"`
	Broadcasts []snapshotBroadcast `yaml:"broadcasts"`
}

type snapshotParticipant struct {
	User   string                     `yaml:"user"`
	Status calendar.ParticipantStatus `yaml:"status"`
}

type snapshotEvent struct {
	ID           string                 `yaml:"id"`
	Title        string                 `yaml:"title"`
	Description  string                 `yaml:"description"`
	Type         calendar.UserEventType `yaml:"type"`
	StartAt      string                 `yaml:"start_at"`
	EndAt        string                 `yaml:"end_at"`
	Owner        string                 `yaml:"owner"`
	Participants []snapshotParticipant  `yaml:"participants"`
}

type snapshotWebinar struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Date        string   `yaml:"date"`
	DateClose   string   `yaml:"date_close"`
	Registrants []string `yaml:"registrants"`
}

type snapshotBroadcast struct {
	ID               string   `yaml:"id"`
	Title            string   `yaml:"title"`
	ShortDescription string   `yaml:"short_description"`
	Date             string   `yaml:"date"`
	DateClose        string   `yaml:"date_close"`
	Subscribers      []string `yaml:"subscribers"`
}

type webinarEntry struct {
	webinar     calendar.Webinar
	registrants []string
}

type broadcastEntry struct {
	broadcast   calendar.Broadcast
	subscribers []string
}

// FileStore serves events from a snapshot document loaded once.
// It is immutable after construction and safe for concurrent use.
type FileStore struct {
	name       string
	users      *Directory
	events     []calendar.UserEvent
	webinars   []webinarEntry
	broadcasts []broadcastEntry
}

// LoadFile reads and parses a snapshot document.
func LoadFile(name, path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	store, err := ParseSnapshot(name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return store, nil
}

// ParseSnapshot builds a FileStore from a YAML or JSON document. Owners,
// participants, registrants and subscribers must reference listed users.
func ParseSnapshot(name string, data []byte) (*FileStore, error) {
	var doc snapshot
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	s := &FileStore{
		name:  name,
		users: NewDirectory(),
	}
	for _, u := range doc.Users {
		if !s.users.Add(u) {
			return nil, fmt.Errorf("duplicate or empty user id %q", u.ID)
		}
	}

	for _, e := range doc.UserEvents {
		ev, err := s.convertEvent(e)
		if err != nil {
			return nil, fmt.Errorf("user event %q: %w", e.ID, err)
		}
		s.events = append(s.events, ev)
	}

	for _, w := range doc.Webinars {
		start, end, err := parseRange(w.Date, w.DateClose)
		if err != nil {
			return nil, fmt.Errorf("webinar %q: %w", w.ID, err)
		}
		if err := s.checkUsers(w.Registrants); err != nil {
			return nil, fmt.Errorf("webinar %q: %w", w.ID, err)
		}
		s.webinars = append(s.webinars, webinarEntry{
			webinar: calendar.Webinar{
				ID:          w.ID,
				Title:       w.Title,
				Description: w.Description,
				Date:        start,
				DateClose:   end,
			},
			registrants: w.Registrants,
		})
	}

	for _, b := range doc.Broadcasts {
		start, end, err := parseRange(b.Date, b.DateClose)
		if err != nil {
			return nil, fmt.Errorf("broadcast %q: %w", b.ID, err)
		}
		if err := s.checkUsers(b.Subscribers); err != nil {
			return nil, fmt.Errorf("broadcast %q: %w", b.ID, err)
		}
		s.broadcasts = append(s.broadcasts, broadcastEntry{
			broadcast: calendar.Broadcast{
				ID:               b.ID,
				Title:            b.Title,
				ShortDescription: b.ShortDescription,
				Date:             start,
				DateClose:        end,
			},
			subscribers: b.Subscribers,
		})
	}

	return s, nil
}

func (s *FileStore) convertEvent(e snapshotEvent) (calendar.UserEvent, error) {
	start, end, err := parseRange(e.StartAt, e.EndAt)
	if err != nil {
		return calendar.UserEvent{}, err
	}

	ev := calendar.UserEvent{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Type:        e.Type,
		StartAt:     start,
		EndAt:       end,
	}

	if e.Owner != "" {
		owner, err := s.users.Lookup(e.Owner)
		if err != nil {
			return calendar.UserEvent{}, fmt.Errorf("owner: %w", err)
		}
		ev.Owner = &owner
	}

	for _, p := range e.Participants {
		u, err := s.users.Lookup(p.User)
		if err != nil {
			return calendar.UserEvent{}, fmt.Errorf("participant: %w", err)
		}
		status := p.Status
		if status == "" {
			status = calendar.ParticipantPending
		}
		ev.Participants = append(ev.Participants, calendar.Participant{User: u, Status: status})
	}

	return ev, nil
}

func (s *FileStore) checkUsers(ids []string) error {
	for _, id := range ids {
		if _, err := s.users.Lookup(id); err != nil {
			return err
		}
	}
	return nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: %w", start, err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: %w", end, err)
	}
	return s, e, nil
}

// Name returns the configured source name.
func (s *FileStore) Name() string {
	return s.name
}

// Users returns the users listed in the snapshot.
func (s *FileStore) Users() []calendar.User {
	return s.users.Users()
}

// UserEvents implements Store.
func (s *FileStore) UserEvents(_ context.Context, viewer calendar.User, from, to time.Time) ([]calendar.UserEvent, error) {
	return filterUserEvents(s.events, viewer, from, to), nil
}

// Webinars implements Store.
func (s *FileStore) Webinars(_ context.Context, viewer calendar.User, from, to time.Time) ([]calendar.WebinarRegistration, error) {
	out := make([]calendar.WebinarRegistration, 0)
	for _, w := range s.webinars {
		reg := calendar.WebinarRegistration{Webinar: w.webinar}
		if slices.Contains(w.registrants, viewer.ID) && intersects(reg.Interval(), from, to) {
			out = append(out, reg)
		}
	}
	return out, nil
}

// Broadcasts implements Store.
func (s *FileStore) Broadcasts(_ context.Context, viewer calendar.User, from, to time.Time) ([]calendar.BroadcastSubscription, error) {
	out := make([]calendar.BroadcastSubscription, 0)
	for _, b := range s.broadcasts {
		sub := calendar.BroadcastSubscription{Broadcast: b.broadcast}
		if slices.Contains(b.subscribers, viewer.ID) && intersects(sub.Interval(), from, to) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// BusyRanges implements Store.
func (s *FileStore) BusyRanges(_ context.Context, users []calendar.User, from, to time.Time) ([]calendar.TimeRange, error) {
	return busyFrom(s.events, users, from, to), nil
}
