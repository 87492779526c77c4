package asidecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger is satisfied by provider.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Clearer wipes fallback state; *Regions satisfies it.
type Clearer interface {
	Clear(ctx context.Context) (int, error)
}

type MonitorOptions struct {
	Pinger   Pinger        // required
	Interval time.Duration // 0 => 5s
	Timeout  time.Duration // per probe; 0 => 2s

	// Fallback is cleared on every dead -> alive transition so entries
	// written during the outage are never served once the remote store
	// is back.
	Fallback Clearer
	// OnRecover runs after Fallback is cleared, in order.
	OnRecover []func(ctx context.Context)

	Logger Logger
	Hooks  Hooks
}

// Monitor probes the remote store on a fixed interval and publishes the
// result through Alive. It starts out dead; only the probe loop writes the
// flag.
type Monitor struct {
	alive atomic.Bool

	pinger    Pinger
	interval  time.Duration
	timeout   time.Duration
	fallback  Clearer
	onRecover []func(context.Context)
	log       Logger
	hooks     Hooks

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

var _ Liveness = (*Monitor)(nil)

func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	if opts.Pinger == nil {
		return nil, fmt.Errorf("asidecache: pinger is required")
	}
	return &Monitor{
		pinger:    opts.Pinger,
		interval:  coalesce(opts.Interval, defaultProbeInterval),
		timeout:   coalesce(opts.Timeout, defaultProbeTimeout),
		fallback:  opts.Fallback,
		onRecover: opts.OnRecover,
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs one probe synchronously, then keeps probing in the
// background until Close or ctx is done. Later calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.probe(ctx)
		m.wg.Add(1)
		go m.loop(ctx)
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.probe(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Alive is a lock-free read of the last probe result.
func (m *Monitor) Alive() bool { return m.alive.Load() }

// probe pings once and applies the transition. Any error or panic from
// the pinger counts as dead.
func (m *Monitor) probe(ctx context.Context) bool {
	err := m.ping(ctx)
	if err != nil {
		if m.alive.CompareAndSwap(true, false) {
			m.log.Warn("remote store unreachable; switching to fallback", Fields{"err": err})
			m.hooks.LivenessChanged(false)
		} else {
			m.log.Debug("liveness probe failed", Fields{"err": err})
		}
		return false
	}
	if m.alive.CompareAndSwap(false, true) {
		m.log.Info("remote store reachable", nil)
		m.hooks.LivenessChanged(true)
		m.recovered(ctx)
	}
	return true
}

func (m *Monitor) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("asidecache: ping panicked: %v", r)
		}
	}()
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.pinger.Ping(pctx)
}

func (m *Monitor) recovered(ctx context.Context) {
	if m.fallback != nil {
		n, err := m.fallback.Clear(ctx)
		if err != nil {
			m.log.Error("clearing fallback regions failed", Fields{"cleared": n, "err": err})
		} else {
			m.log.Info("fallback regions cleared", Fields{"cleared": n})
		}
		m.hooks.FallbackCleared(n)
	}
	for _, fn := range m.onRecover {
		fn(ctx)
	}
}

// Close stops the probe loop and waits for it to exit.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}
