// Package api hosts the optional admin HTTP server that runs next to a
// worker. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the worker's claim and report counters.
package api
