package asidecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/asidecache/internal/util"
	pr "github.com/unkn0wn-root/asidecache/provider"
)

// Manager hands out named cache regions.
type Manager interface {
	Region(name string) (pr.Region, bool)
	RegionNames() []string
}

// Regions is a fixed set of regions built at startup.
type Regions struct {
	byName map[string]pr.Region
	names  []string
}

var _ Manager = (*Regions)(nil)

func NewRegions(regions ...pr.Region) (*Regions, error) {
	m := &Regions{byName: make(map[string]pr.Region, len(regions))}
	for _, r := range regions {
		if r == nil {
			return nil, &RegistrationError{What: "region", Name: "<nil>", Err: ErrInvalidUsage}
		}
		name := r.Name()
		if err := util.ValidateToken(name); err != nil {
			return nil, &RegistrationError{What: "region", Name: name, Err: fmt.Errorf("%w: %v", ErrInvalidKey, err)}
		}
		if _, dup := m.byName[name]; dup {
			return nil, &RegistrationError{What: "region", Name: name, Err: ErrDuplicateRegistration}
		}
		m.byName[name] = r
		m.names = append(m.names, name)
	}
	return m, nil
}

// NewLocalRegions builds one region per registered namespace plus any
// extra names, each with the TTL the registry resolves for it.
func NewLocalRegions(reg *Registry, factory pr.RegionFactory, extra ...string) (*Regions, error) {
	if factory == nil {
		return nil, fmt.Errorf("asidecache: region factory is required")
	}
	var regions []pr.Region
	for _, name := range regionNames(reg, extra) {
		r, err := factory(name, reg.TTL(name))
		if err != nil {
			for _, built := range regions {
				_ = built.Close(context.Background())
			}
			return nil, fmt.Errorf("asidecache: region %q: %w", name, err)
		}
		regions = append(regions, r)
	}
	return NewRegions(regions...)
}

// NewStoreRegions exposes the remote store as regions: region "name"
// keeps key k at "name::k" with the registry TTL for name. That space is
// disjoint from the repository's "name:id" keys.
func NewStoreRegions(store pr.Store, reg *Registry, scanCount int64, extra ...string) (*Regions, error) {
	if store == nil {
		return nil, fmt.Errorf("asidecache: store is required")
	}
	scanCount = coalesce(scanCount, defaultScanCount)
	var regions []pr.Region
	for _, name := range regionNames(reg, extra) {
		regions = append(regions, &storeRegion{name: name, store: store, ttl: reg.TTL(name), scanCount: scanCount})
	}
	return NewRegions(regions...)
}

func regionNames(reg *Registry, extra []string) []string {
	names := reg.Namespaces()
	seen := make(map[string]struct{}, len(names)+len(extra))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, n := range extra {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names
}

func (m *Regions) Region(name string) (pr.Region, bool) {
	r, ok := m.byName[name]
	return r, ok
}

func (m *Regions) RegionNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Clear empties every region and reports how many were cleared.
func (m *Regions) Clear(ctx context.Context) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, name := range m.names {
		if err := m.byName[name].Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("region %q: %w", name, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (m *Regions) Close(ctx context.Context) error {
	var errs []error
	for _, name := range m.names {
		if err := m.byName[name].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("region %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

type storeRegion struct {
	name      string
	store     pr.Store
	ttl       time.Duration
	scanCount int64
}

var _ pr.Region = (*storeRegion)(nil)

func (r *storeRegion) Name() string { return r.name }

func (r *storeRegion) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return r.store.Get(ctx, util.RegionKey(r.name, key))
}

func (r *storeRegion) Set(ctx context.Context, key string, value []byte) error {
	return r.store.Set(ctx, util.RegionKey(r.name, key), value, r.ttl)
}

func (r *storeRegion) Del(ctx context.Context, key string) error {
	_, err := r.store.Del(ctx, util.RegionKey(r.name, key))
	return err
}

func (r *storeRegion) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.store.Scan(ctx, cursor, util.RegionPattern(r.name), r.scanCount)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if _, err := r.store.Del(ctx, keys...); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close is a no-op; the store outlives its regions.
func (r *storeRegion) Close(context.Context) error { return nil }
