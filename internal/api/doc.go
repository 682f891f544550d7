// Package api hosts the HTTP ingress, a separate operating mode that runs a
// single submitted job without the queue. Routes:
//   - POST /crawl runs one crawl synchronously and reports its outcome.
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
