// Package http provides the inbound HTTP front-end.
//
// The server exposes:
//   - The configured proxy routes, each bound to a compiled graph
//   - Liveness checks
//   - Prometheus metrics
//   - The operator event stream (WebSocket)
package http
