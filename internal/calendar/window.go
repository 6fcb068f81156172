package calendar

import "time"

const (
	// DefaultStartHour is the first bookable hour of a day.
	DefaultStartHour = 8

	// DefaultEndHour is the hour at which booking closes.
	DefaultEndHour = 20
)

// BookingHours bounds the part of a day offered for meetings.
type BookingHours struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// DefaultBookingHours returns 08:00–20:00.
func DefaultBookingHours() BookingHours {
	return BookingHours{StartHour: DefaultStartHour, EndHour: DefaultEndHour}
}

// Window returns the bookable range of day in day's location.
//
// The range starts at StartHour, or at the top of now's hour when StartHour
// has already passed, and ends at EndHour.
func (h BookingHours) Window(day, now time.Time) (time.Time, time.Time) {
	loc := day.Location()
	y, m, d := day.Date()

	start := time.Date(y, m, d, h.StartHour, 0, 0, 0, loc)
	if !start.After(now) {
		start = time.Date(y, m, d, now.In(loc).Hour(), 0, 0, 0, loc)
	}
	end := time.Date(y, m, d, h.EndHour, 0, 0, 0, loc)

	return start, end
}
