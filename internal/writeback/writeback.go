// Package writeback runs detached cache writes on a bounded worker pool.
//
// Submissions never block the caller: when the queue is full, or the
// runner is closed, the job is dropped and reported through OnDrop.
package writeback

import (
	"context"
	"sync"
)

// Job is one detached write. Its context is never canceled by the
// submitting request.
type Job func(ctx context.Context)

type task struct {
	ctx context.Context
	fn  Job
}

type Runner struct {
	q      chan task
	onDrop func()

	// mu guards closed, pending and sends on q.
	mu      sync.Mutex
	idle    *sync.Cond
	closed  bool
	pending int

	workers sync.WaitGroup
	once    sync.Once
}

// New starts workers goroutines draining a queue of qlen jobs.
// onDrop may be nil.
func New(workers, qlen int, onDrop func()) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	if onDrop == nil {
		onDrop = func() {}
	}

	r := &Runner{q: make(chan task, qlen), onDrop: onDrop}
	r.idle = sync.NewCond(&r.mu)
	r.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.workers.Done()
			for t := range r.q {
				r.run(t)
			}
		}()
	}
	return r
}

func (r *Runner) run(t task) {
	defer r.done()
	defer func() { _ = recover() }()
	t.fn(t.ctx)
}

func (r *Runner) done() {
	r.mu.Lock()
	r.pending--
	if r.pending == 0 {
		r.idle.Broadcast()
	}
	r.mu.Unlock()
}

// Go queues fn. The caller's context values are kept but its
// cancellation is not.
func (r *Runner) Go(ctx context.Context, fn Job) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.onDrop()
		return
	}
	select {
	case r.q <- task{ctx: context.WithoutCancel(ctx), fn: fn}:
		r.pending++
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		r.onDrop()
	}
}

// Wait blocks until every queued job has finished. Jobs submitted while
// waiting are waited for too.
func (r *Runner) Wait() {
	r.mu.Lock()
	for r.pending > 0 {
		r.idle.Wait()
	}
	r.mu.Unlock()
}

// Close stops accepting jobs and drains the queue.
func (r *Runner) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.q)
		r.mu.Unlock()
		r.workers.Wait()
	})
}
