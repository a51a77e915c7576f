// Package workers implements the dispatch pool for downstream calls.
//
// The pool manages a fixed number of goroutines (the routing document's
// "threads" setting) that drain a shared job queue. The orchestrator
// enqueues one job per downstream call, so its readiness scans hold the
// request lock only for the scan and the enqueue, never for I/O.
//
// The health monitor tracks worker status and records pool metrics.
package workers
