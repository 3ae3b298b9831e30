// Package api hosts the HTTP server, middleware, and REST handlers for the
// draw archive. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/lottery/... for draw listings, history, stats and issue lookups.
//   - POST /api/crawl to trigger a manual crawl.
//   - /api/admin/... for cleanup runs and the crawl error ledger.
package api
