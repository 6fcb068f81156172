package calendar

import (
	"time"
)

// EventType discriminates the sources merged into an agenda
type EventType string

const (
	EventTypeUserEvent EventType = "USER_EVENT"
	EventTypeWebinar   EventType = "WEBINAR"
	EventTypeBroadcast EventType = "BROADCAST"
)

// UserEventType is the optional sub-type of a user event.
// Values coming from sources are kept as-is.
type UserEventType string

const (
	UserEventTypeMeeting  UserEventType = "meeting"
	UserEventTypeCall     UserEventType = "call"
	UserEventTypePersonal UserEventType = "personal"
)

// ParticipantStatus is the moderation status of an invitee
type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantApproved ParticipantStatus = "approved"
	ParticipantDenied   ParticipantStatus = "denied"
)

// User identifies a person. Two users are the same when their IDs match.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Participant represents an invitee of a user event
type Participant struct {
	User   User              `json:"user" yaml:"user"`
	Status ParticipantStatus `json:"status" yaml:"status"`
}

// TimeRange represents a time range
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Event is the closed set of calendar entries the agenda merges:
// UserEvent, WebinarRegistration and BroadcastSubscription.
type Event interface {
	EventID() string
	EventTitle() string
	Interval() TimeRange
	Kind() EventType

	event()
}

// Ownable is implemented by event variants that carry an owner.
type Ownable interface {
	Event
	OwnerRef() *User
}

// UserEvent is an event scheduled by a user, optionally with invitees.
type UserEvent struct {
	ID           string
	Title        string
	Description  string
	Type         UserEventType
	StartAt      time.Time
	EndAt        time.Time
	Owner        *User
	Participants []Participant
}

func (e UserEvent) EventID() string {
	return e.ID
}

func (e UserEvent) EventTitle() string {
	return e.Title
}

func (e UserEvent) Interval() TimeRange {
	return TimeRange{Start: e.StartAt, End: e.EndAt}
}

func (e UserEvent) Kind() EventType {
	return EventTypeUserEvent
}

func (e UserEvent) OwnerRef() *User {
	return e.Owner
}

func (UserEvent) event() {}

// Webinar is a scheduled webinar
type Webinar struct {
	ID          string
	Title       string
	Description string
	Date        time.Time
	DateClose   time.Time
}

// WebinarRegistration links a user to a webinar they registered for.
type WebinarRegistration struct {
	Webinar Webinar
}

func (w WebinarRegistration) EventID() string {
	return w.Webinar.ID
}

func (w WebinarRegistration) EventTitle() string {
	return w.Webinar.Title
}

func (w WebinarRegistration) Interval() TimeRange {
	return TimeRange{Start: w.Webinar.Date, End: w.Webinar.DateClose}
}

func (w WebinarRegistration) Kind() EventType {
	return EventTypeWebinar
}

func (WebinarRegistration) event() {}

// Broadcast is a scheduled live broadcast
type Broadcast struct {
	ID               string
	Title            string
	ShortDescription string
	Date             time.Time
	DateClose        time.Time
}

// BroadcastSubscription links a user to a broadcast they follow.
type BroadcastSubscription struct {
	Broadcast Broadcast
}

func (b BroadcastSubscription) EventID() string {
	return b.Broadcast.ID
}

func (b BroadcastSubscription) EventTitle() string {
	return b.Broadcast.Title
}

func (b BroadcastSubscription) Interval() TimeRange {
	return TimeRange{Start: b.Broadcast.Date, End: b.Broadcast.DateClose}
}

func (b BroadcastSubscription) Kind() EventType {
	return EventTypeBroadcast
}

func (BroadcastSubscription) event() {}

// Item is the unified agenda entry produced from any event variant.
//
// Status is nil while attendance is unresolved (no participants, or only
// pending ones). UserEventType is nil for webinars and broadcasts.
type Item struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	IsOwner       bool           `json:"isOwner"`
	Type          EventType      `json:"type"`
	UserEventType *UserEventType `json:"userEventType"`
	Status        *bool          `json:"status"`
	Description   string         `json:"description"`
	StartAt       time.Time      `json:"startAt"`
	EndAt         time.Time      `json:"endAt"`
}

// Interval returns the item's time span.
func (i Item) Interval() TimeRange {
	return TimeRange{Start: i.StartAt, End: i.EndAt}
}

// TimeSlot is one tick of the booking grid
type TimeSlot struct {
	StartAt     time.Time `json:"startAt"`
	IsAvailable bool      `json:"isAvailable"`
}

// AgendaInput groups the already-fetched event lists of one viewer.
type AgendaInput struct {
	UserEvents []UserEvent
	Webinars   []WebinarRegistration
	Broadcasts []BroadcastSubscription
}
