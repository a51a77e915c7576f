package orchestrator

import (
	"sync"
	"time"

	"github.com/aescanero/routerd/internal/graph"
	"github.com/aescanero/routerd/pkg/message"
	"github.com/google/uuid"
)

// Responder delivers the aggregated multipart response to the client. The
// orchestrator invokes it exactly once per request.
type Responder func(contentType string, body []byte)

// RequestState is the mutable per-request state driven by the
// orchestrator. Every service of the graph is in exactly one of pending,
// inProgress or replies; the request is complete when pending and
// inProgress are both empty. All mutation happens under mu.
type RequestState struct {
	ID     string
	Graph  *graph.CompiledGraph
	Method string
	Path   string

	mu            sync.Mutex
	pending       map[string]struct{}
	inProgress    map[string]struct{}
	replies       map[string][]message.Part
	clientParts   []message.Part
	responseParts []message.Part
	done          bool
	started       time.Time
	respond       Responder
}

// NewRequestState binds a parsed client request to its compiled graph.
// clientParts is the client body contribution to every outgoing downstream
// request: the body's own parts when nested requests are allowed, or one
// opaque default part otherwise.
func NewRequestState(g *graph.CompiledGraph, method, path string, clientParts []message.Part, respond Responder) *RequestState {
	st := &RequestState{
		ID:          uuid.New().String(),
		Graph:       g,
		Method:      method,
		Path:        path,
		pending:     make(map[string]struct{}, len(g.Order)),
		inProgress:  make(map[string]struct{}),
		replies:     make(map[string][]message.Part, len(g.Order)),
		clientParts: clientParts,
		started:     time.Now(),
		respond:     respond,
	}

	for _, name := range g.Order {
		st.pending[name] = struct{}{}
	}

	return st
}

// Done reports whether the responder has been invoked.
func (st *RequestState) Done() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.done
}
