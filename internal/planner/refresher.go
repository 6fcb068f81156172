package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/instrumentation"
	"github.com/teemow/calmerge/internal/logging"
)

// RefreshObserver is told about every refresh run.
type RefreshObserver interface {
	RecordRefresh(at time.Time, err error)
}

// Snapshot is the last successfully built agenda of one user.
type Snapshot struct {
	User    calendar.User
	Items   []calendar.Item
	From    time.Time
	To      time.Time
	BuiltAt time.Time
}

// Refresher rebuilds the agendas of a fixed set of users on a cron
// schedule and keeps the latest result of each in memory.
type Refresher struct {
	svc      *Service
	users    []calendar.User
	horizon  int
	observer RefreshObserver
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	snapshots map[string]Snapshot
	sched     *cron.Cron
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithHorizon sets how many days ahead agendas cover (default 7).
func WithHorizon(days int) RefresherOption {
	return func(r *Refresher) {
		if days > 0 {
			r.horizon = days
		}
	}
}

// WithObserver registers an observer, typically the health checker.
func WithObserver(o RefreshObserver) RefresherOption {
	return func(r *Refresher) {
		r.observer = o
	}
}

// WithRefreshMetrics records refresh_runs_total.
func WithRefreshMetrics(m *instrumentation.Metrics) RefresherOption {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// WithRefreshLogger sets the logger for runs and the scheduler.
func WithRefreshLogger(l *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRefreshClock replaces time.Now.
func WithRefreshClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRefresher creates a Refresher for users.
func NewRefresher(svc *Service, users []calendar.User, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		svc:       svc,
		users:     users,
		horizon:   7,
		logger:    slog.Default(),
		now:       time.Now,
		snapshots: make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh rebuilds every agenda once, from the start of today in the
// service's zone. Users whose build fails keep their previous snapshot;
// the returned error joins all failures.
func (r *Refresher) Refresh(ctx context.Context) error {
	now := r.now()
	local := now.In(r.svc.Location())
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	to := from.AddDate(0, 0, r.horizon)

	var errs []error
	for _, u := range r.users {
		items, err := r.svc.Agenda(ctx, u, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
			continue
		}
		r.mu.Lock()
		r.snapshots[u.ID] = Snapshot{User: u, Items: items, From: from, To: to, BuiltAt: now}
		r.mu.Unlock()
	}
	err := errors.Join(errs...)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		r.logger.Warn("agenda refresh failed", logging.Operation("refresh"), logging.Err(err))
	} else {
		r.logger.Info("agenda refresh completed", logging.Operation("refresh"), logging.Count(len(r.users)))
	}
	r.metrics.RecordRefreshRun(ctx, status)
	if r.observer != nil {
		r.observer.RecordRefresh(now, err)
	}
	return err
}

// Start runs Refresh once and then on the given 5-field cron schedule.
// Overlapping runs are skipped.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	adapter := logging.NewSlogAdapter(r.logger)
	sched := cron.New(
		cron.WithLocation(r.svc.Location()),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	if _, err := sched.AddFunc(schedule, func() {
		_ = r.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	if r.sched != nil {
		r.mu.Unlock()
		return errors.New("refresher already started")
	}
	r.sched = sched
	r.mu.Unlock()

	_ = r.Refresh(ctx)
	sched.Start()
	return nil
}

// Stop stops the schedule and waits for a running refresh to finish or
// ctx to expire.
func (r *Refresher) Stop(ctx context.Context) {
	r.mu.Lock()
	sched := r.sched
	r.sched = nil
	r.mu.Unlock()
	if sched == nil {
		return
	}

	select {
	case <-sched.Stop().Done():
	case <-ctx.Done():
	}
}

// Snapshot returns the latest agenda of a user.
func (r *Refresher) Snapshot(userID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[userID]
	return s, ok
}
