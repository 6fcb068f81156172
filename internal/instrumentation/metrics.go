package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus    = "status"
	attrSource    = "source"
	attrOperation = "operation"
	attrDomain    = "viewer_domain"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics provides methods for recording observability metrics.
// The zero value is a valid no-op recorder.
type Metrics struct {
	// Agenda metrics
	agendaBuildsTotal     metric.Int64Counter
	agendaBuildDuration   metric.Float64Histogram
	agendaItems           metric.Int64Histogram
	agendaOverlapsRemoved metric.Int64Counter

	// Free slot metrics
	slotQueriesTotal  metric.Int64Counter
	slotQueryDuration metric.Float64Histogram
	slotsUnavailable  metric.Int64Histogram

	// Source metrics
	sourceOperationsTotal   metric.Int64Counter
	sourceOperationDuration metric.Float64Histogram

	// Scheduler metrics
	refreshRunsTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.agendaBuildsTotal, err = meter.Int64Counter(
		"agenda_builds_total",
		metric.WithDescription("Total number of agenda builds"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agenda_builds_total counter: %w", err)
	}

	m.agendaBuildDuration, err = meter.Float64Histogram(
		"agenda_build_duration_seconds",
		metric.WithDescription("Agenda build duration in seconds, source fetches included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agenda_build_duration_seconds histogram: %w", err)
	}

	m.agendaItems, err = meter.Int64Histogram(
		"agenda_items",
		metric.WithDescription("Number of items in a built agenda"),
		metric.WithUnit("{item}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agenda_items histogram: %w", err)
	}

	m.agendaOverlapsRemoved, err = meter.Int64Counter(
		"agenda_overlaps_removed_total",
		metric.WithDescription("Webinars and broadcasts dropped because they cross an adjacent user event"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agenda_overlaps_removed_total counter: %w", err)
	}

	m.slotQueriesTotal, err = meter.Int64Counter(
		"slot_queries_total",
		metric.WithDescription("Total number of free slot queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slot_queries_total counter: %w", err)
	}

	m.slotQueryDuration, err = meter.Float64Histogram(
		"slot_query_duration_seconds",
		metric.WithDescription("Free slot query duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slot_query_duration_seconds histogram: %w", err)
	}

	m.slotsUnavailable, err = meter.Int64Histogram(
		"slots_unavailable",
		metric.WithDescription("Number of unavailable slots per query"),
		metric.WithUnit("{slot}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16, 32, 48),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slots_unavailable histogram: %w", err)
	}

	m.sourceOperationsTotal, err = meter.Int64Counter(
		"source_operations_total",
		metric.WithDescription("Total number of event source operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_operations_total counter: %w", err)
	}

	m.sourceOperationDuration, err = meter.Float64Histogram(
		"source_operation_duration_seconds",
		metric.WithDescription("Event source operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_operation_duration_seconds histogram: %w", err)
	}

	m.refreshRunsTotal, err = meter.Int64Counter(
		"refresh_runs_total",
		metric.WithDescription("Total number of scheduled agenda refresh runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh_runs_total counter: %w", err)
	}

	return m, nil
}

// RecordAgendaBuild records one agenda build.
//
// Parameters:
//   - viewerEmail: only its domain is recorded, and only with detailed labels
//   - status: "success" or "error"
//   - items: number of items returned
//   - removed: number of webinars/broadcasts dropped as overlaps
func (m *Metrics) RecordAgendaBuild(ctx context.Context, viewerEmail, status string, items, removed int, duration time.Duration) {
	if m == nil || m.agendaBuildsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(viewerEmail)))
	}
	opt := metric.WithAttributes(attrs...)

	m.agendaBuildsTotal.Add(ctx, 1, opt)
	m.agendaBuildDuration.Record(ctx, duration.Seconds(), opt)
	if status != StatusSuccess {
		return
	}
	m.agendaItems.Record(ctx, int64(items))
	if removed > 0 {
		m.agendaOverlapsRemoved.Add(ctx, int64(removed))
	}
}

// RecordSlotQuery records one free slot query and how many ticks were blocked.
func (m *Metrics) RecordSlotQuery(ctx context.Context, status string, unavailable int, duration time.Duration) {
	if m == nil || m.slotQueriesTotal == nil {
		return // Instrumentation not initialized
	}

	opt := metric.WithAttributes(attribute.String(attrStatus, status))

	m.slotQueriesTotal.Add(ctx, 1, opt)
	m.slotQueryDuration.Record(ctx, duration.Seconds(), opt)
	if status == StatusSuccess {
		m.slotsUnavailable.Record(ctx, int64(unavailable))
	}
}

// RecordSourceOperation records a call into an event source.
//
// Parameters:
//   - source: source kind (file, ics, google, multi)
//   - operation: operation type (user_events, webinars, broadcasts, busy_ranges, fetch)
//   - status: "success" or "error"
func (m *Metrics) RecordSourceOperation(ctx context.Context, source, operation, status string, duration time.Duration) {
	if m == nil || m.sourceOperationsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrSource, source),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.sourceOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sourceOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRefreshRun records a scheduled refresh run with its outcome.
func (m *Metrics) RecordRefreshRun(ctx context.Context, status string) {
	if m == nil || m.refreshRunsTotal == nil {
		return // Instrumentation not initialized
	}

	m.refreshRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
