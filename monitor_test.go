package asidecache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakePinger struct {
	fail   atomic.Bool
	broken atomic.Bool
	calls  atomic.Int32
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.broken.Load() {
		panic("driver bug")
	}
	if p.fail.Load() {
		return errDown
	}
	return ctx.Err()
}

type countingClearer struct{ n atomic.Int32 }

func (c *countingClearer) Clear(context.Context) (int, error) {
	c.n.Add(1)
	return 2, nil
}

func newTestMonitor(t *testing.T, p Pinger, c Clearer, hooks Hooks, onRecover ...func(context.Context)) *Monitor {
	t.Helper()
	m, err := NewMonitor(MonitorOptions{
		Pinger:    p,
		Interval:  time.Hour, // tests drive probe() directly
		Fallback:  c,
		OnRecover: onRecover,
		Hooks:     hooks,
	})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}

func TestMonitorStartsDead(t *testing.T) {
	m := newTestMonitor(t, &fakePinger{}, nil, nil)
	if m.Alive() {
		t.Fatalf("monitor must start dead")
	}
}

func TestMonitorTransitions(t *testing.T) {
	ctx := context.Background()
	p := &fakePinger{}
	c := &countingClearer{}
	hooks := &recHooks{}
	var recovered atomic.Int32
	m := newTestMonitor(t, p, c, hooks, func(context.Context) { recovered.Add(1) })

	// dead -> alive clears the fallback and runs callbacks once
	if !m.probe(ctx) || !m.Alive() {
		t.Fatalf("first good probe should flip to alive")
	}
	m.probe(ctx) // alive -> alive: nothing happens
	if c.n.Load() != 1 || recovered.Load() != 1 {
		t.Fatalf("recovery ran clear=%d callbacks=%d times, want 1/1", c.n.Load(), recovered.Load())
	}

	p.fail.Store(true)
	if m.probe(ctx) || m.Alive() {
		t.Fatalf("failed probe should flip to dead")
	}
	m.probe(ctx)

	p.fail.Store(false)
	m.probe(ctx)
	if c.n.Load() != 2 {
		t.Fatalf("every dead->alive transition clears the fallback, got %d", c.n.Load())
	}

	snap := hooks.snapshot()
	if len(snap.liveness) != 3 || !snap.liveness[0] || snap.liveness[1] || !snap.liveness[2] {
		t.Fatalf("liveness events: %v", snap.liveness)
	}
	if len(snap.cleared) != 2 || snap.cleared[0] != 2 {
		t.Fatalf("fallback cleared events: %v", snap.cleared)
	}
}

func TestMonitorPanicIsDead(t *testing.T) {
	ctx := context.Background()
	p := &fakePinger{}
	m := newTestMonitor(t, p, nil, nil)
	m.probe(ctx)

	p.broken.Store(true)
	if m.probe(ctx) || m.Alive() {
		t.Fatalf("a panicking ping counts as dead")
	}
}

func TestMonitorProbeTimeout(t *testing.T) {
	m, _ := NewMonitor(MonitorOptions{Pinger: pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), Timeout: 10 * time.Millisecond})

	start := time.Now()
	if m.probe(context.Background()) {
		t.Fatalf("timed out ping must be dead")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("probe ignored its timeout")
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMonitorStartProbesSynchronously(t *testing.T) {
	p := &fakePinger{}
	m, _ := NewMonitor(MonitorOptions{Pinger: p, Interval: 5 * time.Millisecond})
	m.Start(context.Background())
	defer m.Close()

	if !m.Alive() {
		t.Fatalf("Start should run the first probe before returning")
	}

	p.fail.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for m.Alive() {
		if time.Now().After(deadline) {
			t.Fatalf("background loop never observed the outage")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMonitorCloseStopsLoop(t *testing.T) {
	p := &fakePinger{}
	m, _ := NewMonitor(MonitorOptions{Pinger: p, Interval: time.Millisecond})
	m.Start(context.Background())
	m.Close()
	m.Close()

	n := p.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if p.calls.Load() != n {
		t.Fatalf("probes continued after Close")
	}
}

func TestNewMonitorRequiresPinger(t *testing.T) {
	if _, err := NewMonitor(MonitorOptions{}); err == nil {
		t.Fatalf("missing pinger should fail")
	}
}
