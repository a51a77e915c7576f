package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type nopMetrics struct{}

func (nopMetrics) RecordRequestReceived(string)                           {}
func (nopMetrics) RecordRequestCompleted(string, time.Duration, int, int) {}
func (nopMetrics) RecordDispatch(string)                                  {}
func (nopMetrics) RecordReply(string, string, time.Duration)              {}
func (nopMetrics) RecordWorkerPoolStatus(int, int, int)                   {}

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()

	pool := NewPool(size, nopMetrics{}, zap.NewNop(), time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	return pool
}

func TestSubmitExecutes(t *testing.T) {
	pool := newTestPool(t, 2)

	done := make(chan struct{})
	if !pool.Submit(func(ctx context.Context) { close(done) }) {
		t.Fatal("Submit returned false")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed")
	}
}

func TestSubmitMany(t *testing.T) {
	pool := newTestPool(t, 2)

	const jobs = 200
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		if !pool.Submit(func(ctx context.Context) { wg.Done() }) {
			t.Fatal("Submit returned false")
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not drained")
	}
}

func TestSubmitOverflowDoesNotBlock(t *testing.T) {
	pool := newTestPool(t, 1)

	// Block the only worker, then push far past the queue capacity
	release := make(chan struct{})
	pool.Submit(func(ctx context.Context) { <-release })

	var wg sync.WaitGroup
	for i := 0; i < 1*queueFactor+10; i++ {
		wg.Add(1)
		if !pool.Submit(func(ctx context.Context) { wg.Done() }) {
			t.Fatal("Submit returned false")
		}
	}
	close(release)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("overflow jobs were not executed")
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := NewPool(1, nopMetrics{}, zap.NewNop(), time.Minute)
	if err := pool.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if pool.Submit(func(ctx context.Context) {}) {
		t.Error("Submit accepted a job after shutdown")
	}
}

func TestHealthStatus(t *testing.T) {
	pool := newTestPool(t, 3)

	// Give workers a moment to start
	time.Sleep(50 * time.Millisecond)

	status := pool.health.GetStatus()
	if status.TotalWorkers != 3 {
		t.Errorf("expected 3 workers, got %d", status.TotalWorkers)
	}
	if !status.Healthy {
		t.Error("expected a fresh pool to be healthy")
	}
}
