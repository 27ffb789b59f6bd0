// Package api hosts the optional status server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/checkpoint for the crawl position of the running process.
package api
