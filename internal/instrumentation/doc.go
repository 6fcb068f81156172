// Package instrumentation provides OpenTelemetry instrumentation for calmerge.
//
// This package covers:
//   - OpenTelemetry metrics for agenda builds, free slot queries and event source calls
//   - Distributed tracing for source fetches
//   - Prometheus metrics export via the /metrics endpoint of the metrics server
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// Agenda Metrics:
//   - agenda_builds_total: Counter of agenda builds by status
//   - agenda_build_duration_seconds: Histogram of agenda build durations
//   - agenda_items: Histogram of items per built agenda
//   - agenda_overlaps_removed_total: Counter of webinars/broadcasts hidden by a user event
//
// Free Slot Metrics:
//   - slot_queries_total: Counter of slot queries by status
//   - slot_query_duration_seconds: Histogram of slot query durations
//   - slots_unavailable: Histogram of blocked ticks per query
//
// Source Metrics:
//   - source_operations_total: Counter of source calls by source, operation, status
//   - source_operation_duration_seconds: Histogram of source call durations
//
// Scheduler Metrics:
//   - refresh_runs_total: Counter of scheduled refresh runs by status
//
// # Tracing
//
// Spans are created for agenda builds, slot queries and every source call
// (source.<source>.<operation>).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: calmerge)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordSlotQuery(ctx, instrumentation.StatusSuccess, blocked, time.Since(start))
package instrumentation
