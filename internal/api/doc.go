// Package api serves the exporter's HTTP surface.
//
// New(reg, store) returns an http.Handler that serves:
//
//	GET /                 — landing page linking /metrics
//	GET /metrics          — Prometheus exposition of the instrument registry
//	GET /api/v1/health    — poll state: up | down | unknown, failures, uptime
//	GET /api/v1/reading   — last successful gateway reading; 404 before one exists
//
// JSON endpoints respond with Content-Type: application/json. Routing uses
// chi; other methods get 405.
package api
