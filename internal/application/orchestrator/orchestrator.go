package orchestrator

import (
	"context"
	"time"

	"github.com/aescanero/routerd/internal/application/workers"
	"github.com/aescanero/routerd/internal/hostpool"
	"github.com/aescanero/routerd/pkg/message"
	"github.com/aescanero/routerd/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator drives a request's graph to completion: it dispatches every
// service whose dependencies have replied, records replies, and invokes
// the responder once the graph has drained. One instance is shared by all
// requests; per-request state lives in RequestState.
type Orchestrator struct {
	hosts   *hostpool.Pool
	pool    *workers.Pool
	client  ports.Downstream
	events  ports.EventBus
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// New creates an orchestrator.
func New(
	hosts *hostpool.Pool,
	pool *workers.Pool,
	client ports.Downstream,
	events ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		hosts:   hosts,
		pool:    pool,
		client:  client,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// Run starts the request: every service with no unsatisfied dependency is
// dispatched immediately. Completion is driven by reply callbacks; Run
// itself does not block on downstream I/O.
func (o *Orchestrator) Run(st *RequestState) {
	o.metrics.RecordRequestReceived(st.Graph.Name)
	o.publish(ports.EventTypeRequestReceived, st, "", nil)
	o.logger.Debug("request received",
		zap.String("request_id", st.ID),
		zap.String("graph", st.Graph.Name),
		zap.String("method", st.Method),
		zap.String("path", st.Path))

	st.mu.Lock()
	outs := o.dispatchReadyLocked(st)
	finish := o.completeLocked(st)
	st.mu.Unlock()

	o.submit(st, outs)
	if finish != nil {
		finish()
	}
}

// dispatchReadyLocked moves every ready service from pending to
// inProgress and prepares its outgoing request. Services are scanned in
// configuration order so tie-breaks are deterministic.
func (o *Orchestrator) dispatchReadyLocked(st *RequestState) []*message.OutgoingRequest {
	var outs []*message.OutgoingRequest
	for _, name := range st.Graph.Order {
		if _, ok := st.pending[name]; !ok {
			continue
		}
		if !o.readyLocked(st, name) {
			continue
		}

		delete(st.pending, name)
		st.inProgress[name] = struct{}{}
		outs = append(outs, o.prepareOutgoingLocked(st, name))
	}
	return outs
}

// readyLocked reports whether every dependency of the service has replied.
func (o *Orchestrator) readyLocked(st *RequestState, name string) bool {
	for dep := range st.Graph.Dependencies(name) {
		if _, ok := st.replies[dep]; !ok {
			return false
		}
	}
	return true
}

// submit enqueues prepared requests on the dispatch pool. Every job ends
// in a reply callback: the downstream adapter synthesizes error parts for
// failures, and an unavailable pool synthesizes one here, so the graph
// always drains.
func (o *Orchestrator) submit(st *RequestState, outs []*message.OutgoingRequest) {
	for _, out := range outs {
		out := out
		o.metrics.RecordDispatch(out.Service)
		o.publish(ports.EventTypeServiceDispatched, st, out.Service, map[string]interface{}{
			"host": out.Addr,
			"port": out.Port,
			"path": out.Path,
		})
		o.logger.Debug("service dispatched",
			zap.String("request_id", st.ID),
			zap.String("service", out.Service),
			zap.String("url", out.URL()))

		started := time.Now()
		ok := o.pool.Submit(func(ctx context.Context) {
			parts := o.client.Do(ctx, out)
			o.reply(st, out.Service, parts, time.Since(started))
		})
		if !ok {
			o.reply(st, out.Service,
				[]message.Part{message.ErrorPart(out.Service, "dispatch pool unavailable")},
				time.Since(started))
		}
	}
}

// reply records a downstream reply for the service, appends its parts to
// the aggregated response, dispatches newly-ready services, and finalizes
// the request once the graph has drained. Replies for services not in
// progress are dropped: that covers double replies, replies from unknown
// services, and replies arriving after completion.
func (o *Orchestrator) reply(st *RequestState, service string, parts []message.Part, elapsed time.Duration) {
	st.mu.Lock()
	if _, ok := st.inProgress[service]; !ok {
		st.mu.Unlock()
		o.logger.Warn("dropping stray reply",
			zap.String("request_id", st.ID),
			zap.String("service", service))
		return
	}

	delete(st.inProgress, service)
	st.replies[service] = parts
	st.responseParts = append(st.responseParts, parts...)

	outs := o.dispatchReadyLocked(st)
	finish := o.completeLocked(st)
	st.mu.Unlock()

	outcome := "ok"
	for _, p := range parts {
		if p.IsError() {
			outcome = "error"
			break
		}
	}
	o.metrics.RecordReply(service, outcome, elapsed)
	o.publish(ports.EventTypeServiceReplied, st, service, map[string]interface{}{
		"outcome": outcome,
		"parts":   len(parts),
	})

	o.submit(st, outs)
	if finish != nil {
		finish()
	}
}

// completeLocked checks the completion condition and, when the graph has
// drained, sets the one-shot done latch and builds the aggregated
// response. The returned closure invokes the responder and must be called
// outside the request lock; it is nil while the request is still in
// flight.
func (o *Orchestrator) completeLocked(st *RequestState) func() {
	if st.done || len(st.pending) > 0 || len(st.inProgress) > 0 {
		return nil
	}
	st.done = true

	contentType, body := message.Encode(st.responseParts)
	parts := len(st.responseParts)
	failed := 0
	for _, p := range st.responseParts {
		if p.IsError() {
			failed++
		}
	}
	respond := st.respond
	elapsed := time.Since(st.started)

	return func() {
		respond(contentType, body)
		o.metrics.RecordRequestCompleted(st.Graph.Name, elapsed, parts, failed)
		o.publish(ports.EventTypeRequestCompleted, st, "", map[string]interface{}{
			"parts":  parts,
			"failed": failed,
		})
		o.logger.Info("request completed",
			zap.String("request_id", st.ID),
			zap.String("graph", st.Graph.Name),
			zap.Int("parts", parts),
			zap.Int("failed", failed),
			zap.Duration("duration", elapsed))
	}
}

// publish emits a request lifecycle event.
func (o *Orchestrator) publish(t ports.EventType, st *RequestState, service string, data map[string]interface{}) {
	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      t,
		RequestID: st.ID,
		Graph:     st.Graph.Name,
		Service:   service,
		Timestamp: time.Now(),
		Data:      data,
	}

	if err := o.events.Publish(context.Background(), ports.TopicRequestEvents, event); err != nil {
		o.logger.Warn("failed to publish event",
			zap.String("type", string(t)),
			zap.Error(err))
	}
}
