// Package api hosts the read-only HTTP interface. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/limits for the current quota usage snapshot.
//   - GET /v1/blogs (optionally ?state=potential) and /v1/blogs/{name} for the registry.
package api
