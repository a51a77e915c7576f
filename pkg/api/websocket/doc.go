// Package websocket streams request lifecycle events to operators.
//
// The stream carries routerd's own orchestration events (dispatches,
// replies, completions), never downstream response bodies.
package websocket
