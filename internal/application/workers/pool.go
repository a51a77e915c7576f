package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/routerd/pkg/ports"
	"go.uber.org/zap"
)

// queueFactor sizes the job queue relative to the worker count.
const queueFactor = 64

// Job is one unit of dispatch work, normally a single downstream call.
type Job func(ctx context.Context)

// Pool manages the fixed set of dispatch worker goroutines. The
// orchestrator enqueues downstream calls here so that its readiness scans
// never block on I/O.
type Pool struct {
	size    int
	jobs    chan Job
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new dispatch pool
func NewPool(
	size int,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:    size,
		jobs:    make(chan Job, size*queueFactor),
		metrics: metrics,
		logger:  logger,
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the dispatch pool
func (p *Pool) Start() error {
	p.logger.Info("starting dispatch pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("dispatch pool started", zap.Int("workers", p.size))
	return nil
}

// Submit enqueues a job. It never blocks: when the queue is full the job
// overflows onto a fresh goroutine, so reply callbacks running on workers
// cannot deadlock the queue. Reports false once the pool is shutting down.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		return true
	default:
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		job(p.ctx)
	}()
	return true
}

// QueueDepth returns the number of queued jobs not yet picked up.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Shutdown gracefully shuts down the dispatch pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down dispatch pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("dispatch pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.status = WorkerStatusStopped
			w.mu.Unlock()
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return

		case job := <-w.pool.jobs:
			w.mu.Lock()
			w.status = WorkerStatusBusy
			w.lastJob = time.Now()
			w.mu.Unlock()

			job(ctx)

			w.mu.Lock()
			w.status = WorkerStatusIdle
			w.mu.Unlock()
		}
	}
}
