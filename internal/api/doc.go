// Package api implements the HTTP status API for confwatch.
//
// New(status, events, summary) returns an http.Handler that serves:
//
//	GET /api/v1/health           — phase, path, timestamps, last error; 503 until a config loads
//	GET /api/v1/config           — retained config; ?format=yaml|toml re-encodes it; 404 if none
//	GET /api/v1/events           — recent events from the history store; ?kind= filters
//	GET /api/v1/metrics/summary  — event totals by kind from the metrics registry
//
// All endpoints respond with JSON (except re-encoded configs) and return 405
// for non-GET methods. JSON types are defined in types.go. No external HTTP
// framework is used.
package api
