package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/instrumentation"
	"github.com/teemow/calmerge/internal/logging"
	"github.com/teemow/calmerge/internal/source"
)

// Service answers agenda and free slot queries on top of a source.Store.
// It is safe for concurrent use when the store is.
type Service struct {
	store   source.Store
	engine  *calendar.Engine
	hours   calendar.BookingHours
	padding time.Duration
	loc     *time.Location
	now     func() time.Time
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBookingHours sets the daily booking window (default 08:00–20:00).
func WithBookingHours(h calendar.BookingHours) Option {
	return func(s *Service) {
		s.hours = h
	}
}

// WithPadding sets the padding used when FreeSlots is called with a
// negative padding.
func WithPadding(d time.Duration) Option {
	return func(s *Service) {
		s.padding = d
	}
}

// WithLocation sets the zone in which days and booking hours are read.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now for the booking window. Use the same clock
// as the engine.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(store source.Store, engine *calendar.Engine, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  engine,
		hours:   calendar.DefaultBookingHours(),
		padding: calendar.DefaultPadding,
		loc:     time.UTC,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the zone days are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Agenda builds the viewer's merged agenda for [from, to]. The three event
// lists are fetched concurrently.
func (s *Service) Agenda(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.Item, error) {
	start := time.Now()
	logger := logging.WithOperation(s.logger, "agenda.build")
	ctx, span := instrumentation.StartSpan(ctx, "agenda.build",
		instrumentation.NewSpanAttributeBuilder().WithViewer(logging.AnonymizeUser(viewer.ID)).Build()...)
	defer span.End()

	var in calendar.AgendaInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.UserEvents, err = s.store.UserEvents(gctx, viewer, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		in.Webinars, err = s.store.Webinars(gctx, viewer, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		in.Broadcasts, err = s.store.Broadcasts(gctx, viewer, from, to)
		return err
	})

	if err := g.Wait(); err != nil {
		err = fmt.Errorf("failed to fetch agenda of %s: %w", viewer.ID, err)
		instrumentation.SetSpanError(span, err)
		s.metrics.RecordAgendaBuild(ctx, viewer.Email, instrumentation.StatusError, 0, 0, time.Since(start))
		logger.Warn("agenda build failed", logging.UserHash(viewer.ID), logging.Err(err))
		return nil, err
	}

	items := calendar.BuildAgenda(in, viewer)
	removed := len(in.UserEvents) + len(in.Webinars) + len(in.Broadcasts) - len(items)

	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithItems(len(items)).Build()...)
	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordAgendaBuild(ctx, viewer.Email, instrumentation.StatusSuccess, len(items), removed, time.Since(start))
	logger.Debug("agenda built",
		logging.UserHash(viewer.ID),
		logging.Count(len(items)),
		slog.Int("overlaps_removed", removed),
		logging.Duration(time.Since(start)),
	)
	return items, nil
}

// FreeSlots returns the booking grid of day for a meeting between viewer
// and target. A negative padding selects the service default.
func (s *Service) FreeSlots(ctx context.Context, viewer, target calendar.User, day time.Time, padding time.Duration) ([]calendar.TimeSlot, error) {
	started := time.Now()
	if padding < 0 {
		padding = s.padding
	}

	day = day.In(s.loc)
	ctx, span := instrumentation.StartSpan(ctx, "slots.fill",
		instrumentation.NewSpanAttributeBuilder().
			WithViewer(logging.AnonymizeUser(viewer.ID)).
			WithDay(day.Format(time.DateOnly)).
			Build()...)
	defer span.End()

	start, end := s.hours.Window(day, s.now())

	// Events starting within padding after the window still block its
	// last ticks.
	busy, err := s.store.BusyRanges(ctx, []calendar.User{viewer, target}, start, end.Add(padding))
	if err != nil {
		err = fmt.Errorf("failed to fetch busy ranges: %w", err)
		instrumentation.SetSpanError(span, err)
		s.metrics.RecordSlotQuery(ctx, instrumentation.StatusError, 0, time.Since(started))
		return nil, err
	}

	slots := s.engine.FillSlots(busy, start, end, padding)
	unavailable := calendar.CountUnavailable(slots)

	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithItems(len(slots)).Build()...)
	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordSlotQuery(ctx, instrumentation.StatusSuccess, unavailable, time.Since(started))
	s.logger.Debug("free slots computed",
		logging.Operation("slots.fill"),
		logging.UserHash(viewer.ID),
		slog.String("day", day.Format(time.DateOnly)),
		slog.Int("busy_ranges", len(busy)),
		logging.Count(len(slots)),
		slog.Int("unavailable", unavailable),
	)
	return slots, nil
}
