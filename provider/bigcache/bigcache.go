package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/asidecache/provider"
)

// Region is a fallback region backed by BigCache. BigCache has no per-entry
// TTL: the region TTL becomes its LifeWindow and expired entries are
// evicted on the CleanWindow tick.
type Region struct {
	name string
	c    *bc.BigCache
}

var _ pr.Region = (*Region)(nil)

type Config struct {
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	Shards             int
}

// noExpiry is the LifeWindow of regions without a TTL. BigCache has no
// "never": on write it evicts the oldest entry once it is older than the
// window, so the window is made long enough to never be reached in practice.
const noExpiry = 10 * 365 * 24 * time.Hour

func lifeWindow(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return noExpiry
	}
	return ttl
}

// New builds a region whose entries live for ttl; ttl <= 0 keeps entries
// until they are deleted, cleared or pushed out by HardMaxCacheSizeMB.
func New(ctx context.Context, name string, ttl time.Duration, cfg Config) (*Region, error) {
	conf := bc.DefaultConfig(lifeWindow(ttl))
	conf.Verbose = false
	if ttl <= 0 {
		conf.CleanWindow = 0 // no expiry
	} else if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Region{name: name, c: c}, nil
}

// Factory returns a RegionFactory building BigCache regions from cfg.
func Factory(cfg Config) pr.RegionFactory {
	return func(name string, ttl time.Duration) (pr.Region, error) {
		return New(context.Background(), name, ttl, cfg)
	}
}

func (p *Region) Name() string { return p.name }

func (p *Region) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Region) Set(_ context.Context, key string, value []byte) error {
	return p.c.Set(key, value)
}

func (p *Region) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (p *Region) Clear(_ context.Context) error {
	return p.c.Reset()
}

func (p *Region) Close(_ context.Context) error {
	return p.c.Close()
}

// Len reports the number of live entries.
func (p *Region) Len() int { return p.c.Len() }
