package asidecache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/asidecache/provider"
)

var errDown = errors.New("store down")

// ===== memStore: in-memory Store with TTL and fault injection =====

type memEntry struct {
	v   []byte
	ttl time.Duration
	exp time.Time
}

type memStore struct {
	mu   sync.Mutex
	m    map[string]memEntry
	down bool
	// failSet rejects Set for these keys only.
	failSet map[string]bool

	gets, mgets, sets, msets, scans int
	cursors                         map[uint64]string
}

var _ pr.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{m: make(map[string]memEntry), failSet: make(map[string]bool)}
}

func (s *memStore) setDown(b bool) {
	s.mu.Lock()
	s.down = b
	s.mu.Unlock()
}

func (s *memStore) live(key string) (memEntry, bool) {
	e, ok := s.m[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key)
		return memEntry{}, false
	}
	return e, true
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.down {
		return nil, false, errDown
	}
	e, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.v...), true, nil
}

func (s *memStore) MGet(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mgets++
	if s.down {
		return nil, errDown
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if e, ok := s.live(k); ok {
			out[i] = append([]byte(nil), e.v...)
		}
	}
	return out, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.down || s.failSet[key] {
		return errDown
	}
	e := memEntry{v: append([]byte(nil), value...), ttl: ttl}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

func (s *memStore) MSet(_ context.Context, pairs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msets++
	if s.down {
		return errDown
	}
	for k, v := range pairs {
		s.m[k] = memEntry{v: append([]byte(nil), v...)}
	}
	return nil
}

func (s *memStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errDown
	}
	var n int64
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

// Scan walks keys in sorted order. Like SCAN, deleting keys between steps
// never makes the walk skip a key that is still present. Only trailing-*
// patterns are supported.
func (s *memStore) Scan(_ context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	if s.down {
		return nil, 0, errDown
	}
	after := ""
	if cursor != 0 {
		after = s.cursors[cursor]
	}
	prefix := strings.TrimSuffix(match, "*")
	var all []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) && k > after {
			all = append(all, k)
		}
	}
	sort.Strings(all)
	if int64(len(all)) <= count {
		return all, 0, nil
	}
	page := all[:count]
	if s.cursors == nil {
		s.cursors = make(map[uint64]string)
	}
	next := uint64(len(s.cursors) + 1)
	s.cursors[next] = page[len(page)-1]
	return page, next, nil
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errDown
	}
	return nil
}

func (s *memStore) Close(context.Context) error { return nil }

func (s *memStore) raw(key string) ([]byte, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	return e.v, e.ttl, ok
}

func (s *memStore) put(key string, v []byte) {
	s.mu.Lock()
	s.m[key] = memEntry{v: v}
	s.mu.Unlock()
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// ===== memRegion: map-backed Region =====

type memRegion struct {
	name    string
	ttl     time.Duration
	mu      sync.Mutex
	m       map[string][]byte
	failGet bool
	clears  int
	closed  bool
}

var _ pr.Region = (*memRegion)(nil)

func newMemRegion(name string, ttl time.Duration) *memRegion {
	return &memRegion{name: name, ttl: ttl, m: make(map[string][]byte)}
}

func memFactory(name string, ttl time.Duration) (pr.Region, error) {
	return newMemRegion(name, ttl), nil
}

func (r *memRegion) Name() string { return r.name }

func (r *memRegion) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet {
		return nil, false, errDown
	}
	v, ok := r.m[key]
	return v, ok, nil
}

func (r *memRegion) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.m[key] = append([]byte(nil), value...)
	r.mu.Unlock()
	return nil
}

func (r *memRegion) Del(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.m, key)
	r.mu.Unlock()
	return nil
}

func (r *memRegion) Clear(context.Context) error {
	r.mu.Lock()
	r.m = make(map[string][]byte)
	r.clears++
	r.mu.Unlock()
	return nil
}

func (r *memRegion) Close(context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *memRegion) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// ===== recHooks: records every event =====

type recHooks struct {
	mu         sync.Mutex
	selfHeals  []string
	storeOps   []string
	writeFails []error
	liveness   []bool
	cleared    []int
}

func (h *recHooks) SelfHeal(k, _ string) {
	h.mu.Lock()
	h.selfHeals = append(h.selfHeals, k)
	h.mu.Unlock()
}

func (h *recHooks) StoreError(op string, _ error) {
	h.mu.Lock()
	h.storeOps = append(h.storeOps, op)
	h.mu.Unlock()
}

func (h *recHooks) WriteBackFailed(_ string, err error) {
	h.mu.Lock()
	h.writeFails = append(h.writeFails, err)
	h.mu.Unlock()
}

func (h *recHooks) LivenessChanged(alive bool) {
	h.mu.Lock()
	h.liveness = append(h.liveness, alive)
	h.mu.Unlock()
}

func (h *recHooks) FallbackCleared(n int) {
	h.mu.Lock()
	h.cleared = append(h.cleared, n)
	h.mu.Unlock()
}

func (h *recHooks) snapshot() recHooks {
	h.mu.Lock()
	defer h.mu.Unlock()
	return recHooks{
		selfHeals:  append([]string(nil), h.selfHeals...),
		storeOps:   append([]string(nil), h.storeOps...),
		writeFails: append([]error(nil), h.writeFails...),
		liveness:   append([]bool(nil), h.liveness...),
		cleared:    append([]int(nil), h.cleared...),
	}
}

// ===== fixtures =====

// testRegistry: widget is Keyed with 1h TTL, counter is a Singleton with
// the 1m default, gadget is Keyed without TTL.
func testRegistry(t interface{ Fatalf(string, ...any) }) *Registry {
	reg, err := NewRegistry(
		TTLConfig{PerNamespace: map[string]time.Duration{"widget": time.Hour, "counter": time.Minute}},
		Register[widget]("widget", Keyed),
		Register[counter]("counter", Singleton),
		Register[gadget]("gadget", Keyed),
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func newTestRepo(t testing.TB, store pr.Store, hooks Hooks) *Repository {
	t.Helper()
	r, err := NewRepository(RepositoryOptions{
		Store:     store,
		Registry:  testRegistry(t),
		Hooks:     hooks,
		ScanCount: 100,
	})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}
