// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET|POST /api/refresh runs every source and waits for the result.
//   - GET /api/availability?date=YYYY-MM-DD serves stored rooms for one date.
//   - GET /api/status reports per-source health for the daily check.
//   - GET /healthz, /readyz for probes and /metrics for Prometheus scraping.
package api
