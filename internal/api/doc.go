// Package api hosts the HTTP server, middleware, and REST handlers of the audit
// service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/audits to queue a run.
//   - GET /v1/audits/{run_id} for status, live progress and results.
//   - GET /v1/audits/{run_id}/report for the xlsx report.
package api
