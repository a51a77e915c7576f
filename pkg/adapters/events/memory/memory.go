package memory

import (
	"context"
	"sync"

	"github.com/aescanero/routerd/pkg/ports"
)

// InMemoryEventBus implements EventBus with in-process fan-out. It is the
// default bus for single-instance deployments and for tests.
type InMemoryEventBus struct {
	subscribers map[string][]subscription
	nextID      int
	mu          sync.RWMutex
}

type subscription struct {
	id      int
	handler ports.EventHandler
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string][]subscription),
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	subs := make([]subscription, len(e.subscribers[topic]))
	copy(subs, e.subscribers[topic])
	e.mu.RUnlock()

	// Handlers run asynchronously; handler errors are the handler's problem
	for _, sub := range subs {
		go func(h ports.EventHandler) {
			_ = h(ctx, event)
		}(sub.handler)
	}

	return nil
}

// Subscribe subscribes to events on a specific topic. The subscription is
// removed when ctx is cancelled.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subscribers[topic] = append(e.subscribers[topic], subscription{id: id, handler: handler})
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.unsubscribe(topic, id)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, topic)
	return nil
}

// Close closes the event bus and cleans up resources
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = make(map[string][]subscription)
	return nil
}

// unsubscribe removes a single subscription from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	for i, sub := range subs {
		if sub.id == id {
			e.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
