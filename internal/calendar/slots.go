package calendar

import (
	"errors"
	"log/slog"
	"time"
)

const (
	// DefaultTick is the spacing of the booking grid.
	DefaultTick = 15 * time.Minute

	// DefaultPadding is how far before a busy event its blocking window starts.
	DefaultPadding = 15 * time.Minute
)

// ErrInvalidTick is returned when the grid step is zero or negative.
var ErrInvalidTick = errors.New("calendar: tick must be positive")

// Engine computes free/busy slot grids. It holds only immutable
// configuration and is safe for concurrent use.
type Engine struct {
	tick   time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithTick sets the grid step (default 15 minutes).
func WithTick(tick time.Duration) Option {
	return func(e *Engine) {
		e.tick = tick
	}
}

// WithClock replaces time.Now as the source of the evaluation instant.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine. It fails only when the tick is not positive,
// since such a grid would never advance.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		tick:   DefaultTick,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tick <= 0 {
		return nil, ErrInvalidTick
	}
	return e, nil
}

// Tick returns the grid step.
func (e *Engine) Tick() time.Duration {
	return e.tick
}

// slotGrid is an insertion-ordered set of slots keyed by epoch second.
type slotGrid struct {
	slots []TimeSlot
	index map[int64]int
}

func (g *slotGrid) add(t time.Time) {
	key := t.Unix()
	if _, ok := g.index[key]; ok {
		return
	}
	g.index[key] = len(g.slots)
	g.slots = append(g.slots, TimeSlot{StartAt: t, IsAvailable: true})
}

func (g *slotGrid) markBusy(t time.Time) bool {
	i, ok := g.index[t.Unix()]
	if !ok {
		return false
	}
	g.slots[i].IsAvailable = false
	return true
}

// FillSlots lays a grid of ticks over [start, end) and marks every tick
// that falls inside a padded busy range as unavailable.
//
// Ticks before the evaluation instant are dropped. For each busy range the
// blocking window is [range.Start-padding, range.End); its ticks are
// stepped from the padded start, so they only hit grid ticks when both are
// aligned. The first tick of the window and a tick equal to range.End never
// block. Slots are returned in chronological order.
func (e *Engine) FillSlots(busy []TimeRange, start, end time.Time, padding time.Duration) []TimeSlot {
	now := e.now().Unix()

	grid := &slotGrid{slots: []TimeSlot{}, index: make(map[int64]int)}
	for t := start; t.Before(end); t = t.Add(e.tick) {
		if t.Unix() < now {
			continue
		}
		grid.add(t)
	}

	blocked := 0
	for _, r := range busy {
		busyStart := r.Start.Add(-padding)
		for t := busyStart; t.Before(r.End); t = t.Add(e.tick) {
			if t.Unix() == busyStart.Unix() || t.Unix() == r.End.Unix() {
				continue
			}
			if grid.markBusy(t) {
				blocked++
			}
		}
	}

	e.logger.Debug("slot grid filled",
		"window_start", start,
		"window_end", end,
		"slots", len(grid.slots),
		"busy_ranges", len(busy),
		"blocked_ticks", blocked,
	)

	return grid.slots
}

// BusyRanges extracts the time spans of user events.
func BusyRanges(events []UserEvent) []TimeRange {
	ranges := make([]TimeRange, 0, len(events))
	for _, ev := range events {
		ranges = append(ranges, ev.Interval())
	}
	return ranges
}

// CountUnavailable returns how many slots are marked busy.
func CountUnavailable(slots []TimeSlot) int {
	n := 0
	for _, s := range slots {
		if !s.IsAvailable {
			n++
		}
	}
	return n
}
