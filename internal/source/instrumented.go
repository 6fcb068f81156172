package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/calmerge/internal/calendar"
	"github.com/teemow/calmerge/internal/instrumentation"
	"github.com/teemow/calmerge/internal/logging"
)

// Instrumented wraps a store with a span, a source_operations_total sample
// and a debug log line per call. Errors are annotated with the source name.
//
// Usage:
//
//	store = source.Instrument(fileStore, instrumentation.SourceFile, "fixtures", metrics, logger)
type Instrumented struct {
	next    Store
	kind    string
	name    string
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Instrument wraps next. A nil metrics recorder only disables metrics.
func Instrument(next Store, kind, name string, metrics *instrumentation.Metrics, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{
		next:    next,
		kind:    kind,
		name:    name,
		metrics: metrics,
		logger:  logging.WithSource(logger, name),
	}
}

func observe[T any](ctx context.Context, s *Instrumented, operation string, call func(context.Context) ([]T, error)) ([]T, error) {
	start := time.Now()
	ctx, span := instrumentation.StartSourceSpan(ctx, s.kind, operation,
		instrumentation.NewSpanAttributeBuilder().WithSourceName(s.name).Build()...)
	defer span.End()

	items, err := call(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		err = fmt.Errorf("source %s: %w", s.name, err)
		instrumentation.SetSpanError(span, err)
	} else {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithItems(len(items)).Build()...)
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordSourceOperation(ctx, s.kind, operation, status, duration)

	s.logger.Debug("source call",
		logging.Operation(operation),
		logging.Status(status),
		logging.Count(len(items)),
		logging.Duration(duration),
		logging.Err(err),
	)
	return items, err
}

// UserEvents implements Store.
func (s *Instrumented) UserEvents(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.UserEvent, error) {
	return observe(ctx, s, instrumentation.OperationUserEvents, func(ctx context.Context) ([]calendar.UserEvent, error) {
		return s.next.UserEvents(ctx, viewer, from, to)
	})
}

// Webinars implements Store.
func (s *Instrumented) Webinars(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.WebinarRegistration, error) {
	return observe(ctx, s, instrumentation.OperationWebinars, func(ctx context.Context) ([]calendar.WebinarRegistration, error) {
		return s.next.Webinars(ctx, viewer, from, to)
	})
}

// Broadcasts implements Store.
func (s *Instrumented) Broadcasts(ctx context.Context, viewer calendar.User, from, to time.Time) ([]calendar.BroadcastSubscription, error) {
	return observe(ctx, s, instrumentation.OperationBroadcasts, func(ctx context.Context) ([]calendar.BroadcastSubscription, error) {
		return s.next.Broadcasts(ctx, viewer, from, to)
	})
}

// BusyRanges implements Store.
func (s *Instrumented) BusyRanges(ctx context.Context, users []calendar.User, from, to time.Time) ([]calendar.TimeRange, error) {
	return observe(ctx, s, instrumentation.OperationBusyRanges, func(ctx context.Context) ([]calendar.TimeRange, error) {
		return s.next.BusyRanges(ctx, users, from, to)
	})
}
