// Package calendar merges a user's events into one agenda and computes
// free/busy booking slots.
//
// Everything here is pure computation over already-fetched values: no I/O,
// no shared mutable state. The package knows three event variants (user
// events, webinar registrations and broadcast subscriptions) behind the
// Event interface; only user events are Ownable and carry participants.
//
// Building an agenda:
//
//	items := calendar.BuildAgenda(calendar.AgendaInput{
//	    UserEvents: events,
//	    Webinars:   webinars,
//	    Broadcasts: broadcasts,
//	}, viewer)
//
// Computing booking slots for a day:
//
//	engine, err := calendar.NewEngine()
//	if err != nil {
//	    return err
//	}
//	start, end := calendar.DefaultBookingHours().Window(day, time.Now())
//	slots := engine.FillSlots(calendar.BusyRanges(events), start, end, calendar.DefaultPadding)
package calendar
