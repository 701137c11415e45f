package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrShutdownTimeout is returned when workers don't stop within timeout.
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

	// ErrPoolStopped is returned for tasks submitted to, or left queued in,
	// a stopped pool.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// DepthReporter receives the number of tasks waiting for a worker.
type DepthReporter interface {
	SetQueueDepth(n int)
}

type nopDepth struct{}

func (nopDepth) SetQueueDepth(int) {}

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	err  error
	done chan struct{}
}

// Pool runs submitted tasks on a fixed number of workers.
type Pool struct {
	workers int
	tasks   chan *task
	queued  atomic.Int64
	depth   DepthReporter
	logger  *slog.Logger

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan *task, cfg.QueueSize),
		depth:   nopDepth{},
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetDepthReporter sets where queue depth is reported.
func (p *Pool) SetDepthReporter(r DepthReporter) {
	p.depth = r
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers, "queue_size", cap(p.tasks))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Do queues fn and blocks until a worker has run it. fn receives ctx.
// If ctx is done before fn finishes, Do returns ctx.Err() and fn keeps
// running to completion on its worker.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context)) error {
	t := &task{ctx: ctx, fn: fn, done: make(chan struct{})}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	select {
	case p.tasks <- t:
		p.depth.SetQueueDepth(int(p.queued.Add(1)))
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	case <-p.ctx.Done():
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	p.mu.RUnlock()

	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting tasks and waits for running tasks to finish.
// Tasks still queued when the workers exit fail with ErrPoolStopped.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(timeout):
		err = ErrShutdownTimeout
	}

	p.abandonQueued()
	return err
}

func (p *Pool) abandonQueued() {
	for {
		select {
		case t := <-p.tasks:
			p.depth.SetQueueDepth(int(p.queued.Add(-1)))
			t.err = ErrPoolStopped
			close(t.done)
		default:
			return
		}
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case t := <-p.tasks:
			p.depth.SetQueueDepth(int(p.queued.Add(-1)))
			p.run(logger, t)
		}
	}
}

func (p *Pool) run(logger *slog.Logger, t *task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r)
			t.err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	t.fn(t.ctx)
}
