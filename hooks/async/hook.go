// Package asynchook moves Hooks calls off the cache's hot path onto a
// bounded queue. Events are dropped, never blocked on, when the queue is
// full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	repo, _ := asidecache.NewRepository(asidecache.RepositoryOptions{
//	    Store:    store,
//	    Registry: reg,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/asidecache"
)

type Hooks struct {
	inner   asidecache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ asidecache.Hooks = (*Hooks)(nil)

func New(inner asidecache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = asidecache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close flushes queued events and stops the workers. Events raised
// afterwards are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)          { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) StoreError(op string, e error) { h.try(func() { h.inner.StoreError(op, e) }) }
func (h *Hooks) LivenessChanged(alive bool)    { h.try(func() { h.inner.LivenessChanged(alive) }) }
func (h *Hooks) FallbackCleared(n int)         { h.try(func() { h.inner.FallbackCleared(n) }) }
func (h *Hooks) WriteBackFailed(ns string, err error) {
	h.try(func() { h.inner.WriteBackFailed(ns, err) })
}
