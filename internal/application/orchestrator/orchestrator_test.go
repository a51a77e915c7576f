package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/routerd/internal/application/workers"
	"github.com/aescanero/routerd/internal/config"
	"github.com/aescanero/routerd/internal/graph"
	"github.com/aescanero/routerd/internal/hostpool"
	"github.com/aescanero/routerd/pkg/message"
	"github.com/aescanero/routerd/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopMetrics struct{}

func (nopMetrics) RecordRequestReceived(string)                           {}
func (nopMetrics) RecordRequestCompleted(string, time.Duration, int, int) {}
func (nopMetrics) RecordDispatch(string)                                  {}
func (nopMetrics) RecordReply(string, string, time.Duration)              {}
func (nopMetrics) RecordWorkerPoolStatus(int, int, int)                   {}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, ports.Event) error          { return nil }
func (nopBus) Subscribe(context.Context, string, ports.EventHandler) error { return nil }
func (nopBus) Unsubscribe(context.Context, string) error                   { return nil }
func (nopBus) Close() error                                                { return nil }

// stubDownstream records calls in execution order and answers through an
// optional handler. The default reply is one part named after the service.
type stubDownstream struct {
	mu       sync.Mutex
	order    []string
	requests map[string]*message.OutgoingRequest
	handler  func(out *message.OutgoingRequest) []message.Part
}

func newStubDownstream() *stubDownstream {
	return &stubDownstream{requests: make(map[string]*message.OutgoingRequest)}
}

func (s *stubDownstream) Do(ctx context.Context, out *message.OutgoingRequest) []message.Part {
	s.mu.Lock()
	s.order = append(s.order, out.Service)
	s.requests[out.Service] = out
	s.mu.Unlock()

	if s.handler != nil {
		return s.handler(out)
	}
	return []message.Part{{Name: out.Service, Body: []byte(out.Service + " reply")}}
}

func (s *stubDownstream) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *stubDownstream) indexOf(t *testing.T, service string) int {
	t.Helper()
	for i, name := range s.calls() {
		if name == service {
			return i
		}
	}
	t.Fatalf("service %s was never called", service)
	return -1
}

func compileGraph(t *testing.T, services []string, deps []config.Dep) (*graph.CompiledGraph, *hostpool.Pool) {
	t.Helper()

	groups := make(map[string][]string, len(services))
	entries := make([]config.ServiceEntry, 0, len(services))
	for _, name := range services {
		groups[name] = []string{"127.0.0.1:1"}
		entries = append(entries, config.ServiceEntry{Name: name, HostsFrom: name})
	}

	hosts, err := hostpool.New(groups)
	require.NoError(t, err)

	g, err := graph.Compile("g", config.Graph{Services: entries, Deps: deps}, hosts)
	require.NoError(t, err)

	return g, hosts
}

func newTestOrchestrator(t *testing.T, hosts *hostpool.Pool, client ports.Downstream) *Orchestrator {
	t.Helper()

	pool := workers.NewPool(4, nopMetrics{}, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	return New(hosts, pool, client, nopBus{}, nopMetrics{}, zap.NewNop())
}

func runRequest(t *testing.T, o *Orchestrator, g *graph.CompiledGraph, clientParts []message.Part) (*RequestState, []message.Part) {
	t.Helper()

	done := make(chan []message.Part, 1)
	st := NewRequestState(g, "GET", "/x", clientParts, func(contentType string, body []byte) {
		parts, ok := message.Decode(contentType, body)
		if !ok {
			t.Errorf("aggregated response is not multipart: %s", contentType)
		}
		done <- parts
	})

	o.Run(st)

	select {
	case parts := <-done:
		return st, parts
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
		return nil, nil
	}
}

func TestSingleService(t *testing.T) {
	g, hosts := compileGraph(t, []string{"svc"}, nil)
	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	st, parts := runRequest(t, o, g, nil)

	assert.True(t, st.Done())
	assert.Equal(t, []string{"svc"}, stub.calls())

	require.Len(t, parts, 1)
	assert.Equal(t, "svc", parts[0].Name)
	assert.Equal(t, "svc reply", string(parts[0].Body))
}

func TestEmptyGraphCompletesImmediately(t *testing.T) {
	g, hosts := compileGraph(t, nil, nil)
	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	_, parts := runRequest(t, o, g, nil)

	assert.Empty(t, stub.calls())
	assert.Empty(t, parts)
}

func TestLinearChainOrder(t *testing.T) {
	// a depends on b, b depends on c: dispatch must be c, b, a
	g, hosts := compileGraph(t, []string{"a", "b", "c"}, []config.Dep{
		{A: "a", B: "b"},
		{A: "b", B: "c"},
	})
	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	_, parts := runRequest(t, o, g, nil)

	assert.Equal(t, []string{"c", "b", "a"}, stub.calls())
	require.Len(t, parts, 3)
}

func TestDiamond(t *testing.T) {
	g, hosts := compileGraph(t, []string{"a", "b", "c", "d"}, []config.Dep{
		{A: "a", B: "b"},
		{A: "a", B: "c"},
		{A: "b", B: "d"},
		{A: "c", B: "d"},
	})
	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	_, parts := runRequest(t, o, g, nil)

	// One downstream call per service
	assert.Len(t, stub.calls(), 4)

	// d first, a last, b and c in between in either order
	di := stub.indexOf(t, "d")
	ai := stub.indexOf(t, "a")
	assert.Equal(t, 0, di)
	assert.Equal(t, 3, ai)

	// a's outgoing body carries both b's and c's reply parts
	aBody := stub.requests["a"]
	decoded, ok := message.Decode(aBody.ContentType, aBody.Body)
	require.True(t, ok)

	names := make(map[string]int)
	for _, p := range decoded {
		names[p.Name]++
	}
	assert.Equal(t, 1, names["b"])
	assert.Equal(t, 1, names["c"])
	assert.Equal(t, 1, names["d"])

	// Every service appears exactly once in the aggregated response
	counts := make(map[string]int)
	for _, p := range parts {
		counts[p.Name]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, counts)
}

func TestIndependentServicesRunConcurrently(t *testing.T) {
	g, hosts := compileGraph(t, []string{"a", "b"}, nil)

	entered := make(chan string, 2)
	barrier := make(chan struct{})

	stub := newStubDownstream()
	stub.handler = func(out *message.OutgoingRequest) []message.Part {
		entered <- out.Service
		<-barrier
		return []message.Part{{Name: out.Service, Body: []byte("ok")}}
	}
	o := newTestOrchestrator(t, hosts, stub)

	result := make(chan int, 1)
	go func() {
		_, parts := runRequest(t, o, g, nil)
		result <- len(parts)
	}()

	// Both services must be in flight before either reply
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("services were not dispatched concurrently")
		}
	}
	close(barrier)

	select {
	case n := <-result:
		assert.Equal(t, 2, n)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}
}

func TestDownstreamErrorStillDrains(t *testing.T) {
	g, hosts := compileGraph(t, []string{"good", "bad"}, nil)

	stub := newStubDownstream()
	stub.handler = func(out *message.OutgoingRequest) []message.Part {
		if out.Service == "bad" {
			return []message.Part{message.ErrorPart(out.Service, "connect: refused")}
		}
		return []message.Part{{Name: out.Service, Body: []byte("ok")}}
	}
	o := newTestOrchestrator(t, hosts, stub)

	_, parts := runRequest(t, o, g, nil)

	require.Len(t, parts, 2)

	byName := make(map[string]message.Part, 2)
	for _, p := range parts {
		byName[p.Name] = p
	}
	assert.False(t, byName["good"].IsError())
	assert.True(t, byName["bad"].IsError())
}

func TestErroredDependencySatisfiesDependent(t *testing.T) {
	g, hosts := compileGraph(t, []string{"a", "b"}, []config.Dep{{A: "a", B: "b"}})

	stub := newStubDownstream()
	stub.handler = func(out *message.OutgoingRequest) []message.Part {
		if out.Service == "b" {
			return []message.Part{message.ErrorPart(out.Service, "timeout after 5s")}
		}
		return []message.Part{{Name: out.Service, Body: []byte("ok")}}
	}
	o := newTestOrchestrator(t, hosts, stub)

	_, parts := runRequest(t, o, g, nil)

	assert.Equal(t, []string{"b", "a"}, stub.calls())
	assert.Len(t, parts, 2)
}

func TestClientPartsReachEveryService(t *testing.T) {
	g, hosts := compileGraph(t, []string{"a", "b"}, []config.Dep{{A: "a", B: "b"}})
	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	client := []message.Part{{Name: message.DefaultChunkName, Body: []byte("client payload")}}
	runRequest(t, o, g, client)

	for _, service := range []string{"a", "b"} {
		out := stub.requests[service]
		decoded, ok := message.Decode(out.ContentType, out.Body)
		require.True(t, ok, "outgoing body of %s is not multipart", service)

		found := false
		for _, p := range decoded {
			if p.Name == message.DefaultChunkName && string(p.Body) == "client payload" {
				found = true
			}
		}
		assert.True(t, found, "client part missing from %s's outgoing body", service)
	}
}

func TestStrayReplyDropped(t *testing.T) {
	g, hosts := compileGraph(t, []string{"svc"}, nil)
	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	responses := make(chan struct{}, 2)
	st := NewRequestState(g, "GET", "/x", nil, func(string, []byte) {
		responses <- struct{}{}
	})

	o.Run(st)

	select {
	case <-responses:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}

	// A double reply after completion must be dropped silently
	o.reply(st, "svc", []message.Part{{Name: "svc", Body: []byte("again")}}, 0)
	o.reply(st, "unknown", []message.Part{{Name: "unknown"}}, 0)

	select {
	case <-responses:
		t.Fatal("responder invoked more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServicePathOverridesClientPath(t *testing.T) {
	groups := map[string][]string{"backends": {"127.0.0.1:1"}}
	hosts, err := hostpool.New(groups)
	require.NoError(t, err)

	g, err := graph.Compile("g", config.Graph{
		Services: []config.ServiceEntry{
			{Name: "pinned", HostsFrom: "backends", Path: "/internal"},
			{Name: "plain", HostsFrom: "backends"},
		},
	}, hosts)
	require.NoError(t, err)

	stub := newStubDownstream()
	o := newTestOrchestrator(t, hosts, stub)

	runRequest(t, o, g, nil)

	assert.Equal(t, "/internal", stub.requests["pinned"].Path)
	assert.Equal(t, "/x", stub.requests["plain"].Path)
}
