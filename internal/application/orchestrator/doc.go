// Package orchestrator implements the per-request composition engine.
//
// Given a compiled graph and a request state, the orchestrator:
//   - Dispatches every service whose dependencies have all replied
//   - Folds each reply into the outgoing bodies of later dispatches
//   - Aggregates all reply parts into a single multipart response
//   - Invokes the client responder exactly once when the graph drains
//
// Dispatch is non-blocking: downstream calls run on the dispatch pool and
// re-enter the orchestrator through reply callbacks under the per-request
// lock. Downstream failures become synthesized error parts, so every
// dispatched service terminates and the graph always drains.
package orchestrator
