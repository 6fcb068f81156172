package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestEngine(t *testing.T, now time.Time, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock(now))}, opts...)
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	return e
}

// availability renders slots as "15:04" -> available for compact assertions.
func availability(slots []TimeSlot) map[string]bool {
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s.StartAt.Format("15:04")] = s.IsAvailable
	}
	return out
}

func TestNewEngine(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
		tick    time.Duration
	}{
		{name: "defaults", tick: DefaultTick},
		{name: "custom tick", opts: []Option{WithTick(30 * time.Minute)}, tick: 30 * time.Minute},
		{name: "zero tick", opts: []Option{WithTick(0)}, wantErr: ErrInvalidTick},
		{name: "negative tick", opts: []Option{WithTick(-time.Minute)}, wantErr: ErrInvalidTick},
		{name: "nil clock keeps default", opts: []Option{WithClock(nil)}, tick: DefaultTick},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.tick, e.Tick())
		})
	}
}

func TestFillSlots_NoBusyRanges(t *testing.T) {
	e := newTestEngine(t, at(7, 0))

	slots := e.FillSlots(nil, at(9, 0), at(10, 0), DefaultPadding)

	require.Len(t, slots, 4)
	assert.Equal(t, map[string]bool{
		"09:00": true,
		"09:15": true,
		"09:30": true,
		"09:45": true,
	}, availability(slots))
}

func TestFillSlots_BusyRanges(t *testing.T) {
	tests := []struct {
		name    string
		busy    []TimeRange
		padding time.Duration
		want    map[string]bool
	}{
		{
			name:    "misaligned busy range does not hit the grid",
			busy:    []TimeRange{{Start: at(9, 20), End: at(9, 50)}},
			padding: 10 * time.Minute,
			want:    map[string]bool{"09:00": true, "09:15": true, "09:30": true, "09:45": true},
		},
		{
			name:    "padded start tick stays available",
			busy:    []TimeRange{{Start: at(9, 30), End: at(10, 0)}},
			padding: 15 * time.Minute,
			want:    map[string]bool{"09:00": true, "09:15": true, "09:30": false, "09:45": false},
		},
		{
			name:    "end tick stays available",
			busy:    []TimeRange{{Start: at(9, 0), End: at(9, 30)}},
			padding: 0,
			want:    map[string]bool{"09:00": true, "09:15": false, "09:30": true, "09:45": true},
		},
		{
			name:    "padding blocks ticks before the event",
			busy:    []TimeRange{{Start: at(9, 45), End: at(10, 15)}},
			padding: 30 * time.Minute,
			want:    map[string]bool{"09:00": true, "09:15": true, "09:30": false, "09:45": false},
		},
		{
			name: "overlapping ranges compound",
			busy: []TimeRange{
				{Start: at(9, 0), End: at(9, 45)},
				{Start: at(9, 15), End: at(9, 30)},
			},
			padding: 0,
			want:    map[string]bool{"09:00": true, "09:15": false, "09:30": false, "09:45": true},
		},
		{
			name:    "busy range outside the window is ignored",
			busy:    []TimeRange{{Start: at(11, 0), End: at(12, 0)}},
			padding: DefaultPadding,
			want:    map[string]bool{"09:00": true, "09:15": true, "09:30": true, "09:45": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, at(7, 0))

			slots := e.FillSlots(tt.busy, at(9, 0), at(10, 0), tt.padding)

			assert.Equal(t, tt.want, availability(slots))
		})
	}
}

func TestFillSlots_DropsTicksBeforeNow(t *testing.T) {
	now := at(9, 20)
	e := newTestEngine(t, now)

	slots := e.FillSlots(nil, at(9, 0), at(10, 0), DefaultPadding)

	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.False(t, s.StartAt.Before(now), "slot %s precedes now", s.StartAt)
	}
}

func TestFillSlots_NowHasSecondPrecision(t *testing.T) {
	e := newTestEngine(t, at(9, 15).Add(30*time.Second))

	slots := e.FillSlots(nil, at(9, 0), at(10, 0), DefaultPadding)

	assert.Equal(t, map[string]bool{"09:30": true, "09:45": true}, availability(slots))
}

func TestFillSlots_BusyRangeStartingBeforeNow(t *testing.T) {
	e := newTestEngine(t, at(9, 20))

	busy := []TimeRange{{Start: at(9, 0), End: at(9, 40)}}
	slots := e.FillSlots(busy, at(9, 0), at(10, 0), 0)

	// 09:15 is blocked by the range but was never on the grid.
	assert.Equal(t, map[string]bool{"09:30": false, "09:45": true}, availability(slots))
}

func TestFillSlots_EmptyWindow(t *testing.T) {
	e := newTestEngine(t, at(7, 0))

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{name: "inverted window", start: at(10, 0), end: at(9, 0)},
		{name: "zero-length window", start: at(9, 0), end: at(9, 0)},
		{name: "window entirely in the past", start: at(5, 0), end: at(6, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := e.FillSlots([]TimeRange{{Start: at(5, 0), End: at(11, 0)}}, tt.start, tt.end, DefaultPadding)
			assert.NotNil(t, slots)
			assert.Empty(t, slots)
		})
	}
}

func TestFillSlots_GridIsEvenlySpaced(t *testing.T) {
	for _, tick := range []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour} {
		t.Run(tick.String(), func(t *testing.T) {
			e := newTestEngine(t, at(0, 0), WithTick(tick))
			busy := []TimeRange{
				{Start: at(9, 0), End: at(10, 30)},
				{Start: at(13, 15), End: at(14, 0)},
			}

			slots := e.FillSlots(busy, at(8, 0), at(20, 0), DefaultPadding)

			require.NotEmpty(t, slots)
			assert.Equal(t, at(8, 0), slots[0].StartAt)
			for i := 1; i < len(slots); i++ {
				assert.Equal(t, tick, slots[i].StartAt.Sub(slots[i-1].StartAt))
			}
			assert.True(t, slots[len(slots)-1].StartAt.Before(at(20, 0)))
		})
	}
}

func TestFillSlots_TickIndependentOfPadding(t *testing.T) {
	e := newTestEngine(t, at(7, 0), WithTick(30*time.Minute))

	busy := []TimeRange{{Start: at(10, 0), End: at(11, 0)}}
	slots := e.FillSlots(busy, at(9, 0), at(12, 0), 60*time.Minute)

	assert.Equal(t, map[string]bool{
		"09:00": true,
		"09:30": false,
		"10:00": false,
		"10:30": false,
		"11:00": true,
		"11:30": true,
	}, availability(slots))
}

func TestBusyRanges(t *testing.T) {
	events := []UserEvent{
		{ID: "1", StartAt: at(9, 0), EndAt: at(10, 0)},
		{ID: "2", StartAt: at(11, 0), EndAt: at(11, 30)},
	}

	assert.Equal(t, []TimeRange{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(11, 0), End: at(11, 30)},
	}, BusyRanges(events))
	assert.Empty(t, BusyRanges(nil))
}

func TestCountUnavailable(t *testing.T) {
	slots := []TimeSlot{
		{StartAt: at(9, 0), IsAvailable: true},
		{StartAt: at(9, 15), IsAvailable: false},
		{StartAt: at(9, 30), IsAvailable: false},
	}
	assert.Equal(t, 2, CountUnavailable(slots))
	assert.Equal(t, 0, CountUnavailable(nil))
}
