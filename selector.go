package asidecache

import (
	"context"

	"github.com/unkn0wn-root/asidecache/codec"
	pr "github.com/unkn0wn-root/asidecache/provider"
)

// Liveness reports whether the remote store currently answers.
type Liveness interface {
	Alive() bool
}

type SelectorOptions struct {
	Liveness Liveness // required
	Remote   Manager  // required
	Fallback Manager  // required
	Logger   Logger
}

// Selector is a Manager that resolves each region lookup against the
// remote manager while the store is alive and the fallback one otherwise.
// The decision is made per call and never cached.
type Selector struct {
	live     Liveness
	remote   Manager
	fallback Manager
	log      Logger
}

var _ Manager = (*Selector)(nil)

func NewSelector(opts SelectorOptions) (*Selector, error) {
	if opts.Liveness == nil || opts.Remote == nil || opts.Fallback == nil {
		return nil, ErrInvalidUsage
	}
	return &Selector{
		live:     opts.Liveness,
		remote:   opts.Remote,
		fallback: opts.Fallback,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
	}, nil
}

func (s *Selector) active() Manager {
	if s.live.Alive() {
		return s.remote
	}
	return s.fallback
}

func (s *Selector) Region(name string) (pr.Region, bool) {
	if !s.live.Alive() {
		s.log.Debug("remote store unavailable; using fallback region", Fields{"region": name})
		return s.fallback.Region(name)
	}
	return s.remote.Region(name)
}

func (s *Selector) RegionNames() []string { return s.active().RegionNames() }

// Cached returns the value kept under key in region, computing and storing
// it with fn on a miss. Region failures are logged and treated as misses;
// an entry that no longer decodes is evicted and recomputed. Errors from fn
// are returned and nothing is stored.
func Cached[T any](ctx context.Context, m Manager, c codec.Codec, log Logger, region, key string, fn func(context.Context) (T, error)) (T, error) {
	if log == nil {
		log = NopLogger{}
	}
	r, ok := m.Region(region)
	if !ok {
		log.Warn("unknown region; caching skipped", Fields{"region": region})
		return fn(ctx)
	}

	raw, hit, err := r.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn("region read failed; treated as miss", Fields{"region": region, "key": key, "err": err})
	case hit:
		var v T
		if err := c.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		log.Debug("undecodable region entry; evicting", Fields{"region": region, "key": key})
		if err := r.Del(ctx, key); err != nil {
			log.Warn("region evict failed", Fields{"region": region, "key": key, "err": err})
		}
	}

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if isNil(any(v)) {
		return v, nil
	}
	b, err := c.Marshal(v)
	if err != nil {
		log.Warn("encode failed; value not cached", Fields{"region": region, "key": key, "err": err})
		return v, nil
	}
	if err := r.Set(ctx, key, b); err != nil {
		log.Warn("region write failed", Fields{"region": region, "key": key, "err": err})
	}
	return v, nil
}
