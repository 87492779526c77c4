package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/asidecache/provider"
)

// Region is a fallback region backed by one ristretto cache.
// Every entry expires after the region TTL; cost is the payload size.
type Region struct {
	name string
	ttl  time.Duration
	c    *rc.Cache
}

var _ pr.Region = (*Region)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
	Metrics     bool
}

// DefaultConfig sizes a region for ~10k entries and 64MiB of payload.
func DefaultConfig() Config {
	return Config{NumCounters: 1e5, MaxCost: 64 << 20, BufferItems: 64}
}

func New(name string, ttl time.Duration, cfg Config) (*Region, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Region{name: name, ttl: ttl, c: c}, nil
}

// Factory returns a RegionFactory building ristretto regions from cfg.
func Factory(cfg Config) pr.RegionFactory {
	return func(name string, ttl time.Duration) (pr.Region, error) {
		return New(name, ttl, cfg)
	}
}

func (p *Region) Name() string { return p.name }

func (p *Region) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the write buffer to drain so the value is visible to the
// next Get on any goroutine.
func (p *Region) Set(_ context.Context, key string, value []byte) error {
	ttl := p.ttl
	if ttl < 0 {
		ttl = 0
	}
	if !p.c.SetWithTTL(key, value, int64(len(value))+int64(len(key)), ttl) {
		return pr.ErrRejected
	}
	p.c.Wait()
	return nil
}

func (p *Region) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Region) Clear(_ context.Context) error {
	p.c.Clear()
	return nil
}

func (p *Region) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto metrics when enabled in Config.
func (p *Region) Metrics() *rc.Metrics { return p.c.Metrics }
