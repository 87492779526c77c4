package asidecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/asidecache/internal/util"
	pr "github.com/unkn0wn-root/asidecache/provider"
)

// ErrNoRegion is returned by FallbackStore for keys whose namespace has no region.
var ErrNoRegion = errors.New("asidecache: no region for namespace")

// FallbackStore presents local regions as a Store so a Repository can run
// against process memory while the remote store is down. A key is routed
// to the region named by its namespace token; the region's own TTL
// replaces the per-call ttl.
type FallbackStore struct {
	regions Manager
}

var (
	_ pr.Store            = (*FallbackStore)(nil)
	_ pr.NamespaceClearer = (*FallbackStore)(nil)
)

func NewFallbackStore(regions Manager) *FallbackStore {
	return &FallbackStore{regions: regions}
}

func (s *FallbackStore) region(key string) (pr.Region, error) {
	ns := util.Namespace(key)
	r, ok := s.regions.Region(ns)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoRegion, ns)
	}
	return r, nil
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := s.region(key)
	if err != nil {
		return nil, false, err
	}
	return r.Get(ctx, key)
}

func (s *FallbackStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (s *FallbackStore) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	r, err := s.region(key)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, value)
}

// MSet writes pair by pair. Unlike the remote store it is not atomic.
func (s *FallbackStore) MSet(ctx context.Context, pairs map[string][]byte) error {
	var errs []error
	for k, v := range pairs {
		if err := s.Set(ctx, k, v, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FallbackStore) Del(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		r, err := s.region(key)
		if err != nil {
			return n, err
		}
		_, ok, err := r.Get(ctx, key)
		if err != nil {
			return n, err
		}
		if err := r.Del(ctx, key); err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *FallbackStore) Scan(context.Context, uint64, string, int64) ([]string, uint64, error) {
	return nil, 0, pr.ErrScanUnsupported
}

// ClearNamespace wipes the whole region. Local caches can't count their
// entries, so the result is -1.
func (s *FallbackStore) ClearNamespace(ctx context.Context, namespace string) (int64, error) {
	r, ok := s.regions.Region(namespace)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoRegion, namespace)
	}
	if err := r.Clear(ctx); err != nil {
		return 0, err
	}
	return -1, nil
}

func (s *FallbackStore) Ping(context.Context) error { return nil }

// Close leaves the regions open; their owner closes them.
func (s *FallbackStore) Close(context.Context) error { return nil }
