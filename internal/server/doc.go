// Package server runs the operational HTTP endpoint of calmerge serve:
// Prometheus metrics plus Kubernetes health probes.
//
// # Endpoints
//
//   - /metrics: Prometheus scrape endpoint (only with the prometheus exporter)
//   - /healthz: liveness, always 200 while the process serves HTTP
//   - /readyz: readiness, 200 once the first agenda refresh succeeded
//   - /healthz/detailed: uptime, refresh count and the last refresh outcome
//   - /agenda?user=<id>: the latest refreshed agenda of a user, when enabled
//
// The HealthChecker is fed by the planner's refresher through RecordRefresh.
package server
