package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/asidecache/provider"
)

var (
	ErrNilClient = errors.New("redis provider: nil client")
	// ErrUnexpectedPong is returned by Ping when the server answered
	// with anything but PONG.
	ErrUnexpectedPong = errors.New("redis provider: unexpected ping reply")
)

const pong = "PONG"

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ pr.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Client exposes the underlying client (e.g. for sharing with other components).
func (p *Redis) Client() goredis.UniversalClient { return p.rdb }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) != len(keys) {
		return nil, fmt.Errorf("redis mget: got %d values for %d keys", len(vals), len(keys))
	}
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[i] = []byte(vv)
		case []byte:
			out[i] = vv
		default:
			out[i] = []byte(fmt.Sprint(vv))
		}
	}
	return out, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // non-positive TTL => no expiry
	}
	return p.rdb.Set(ctx, key, value, ttl).Err()
}

// MSet writes every pair atomically. Redis MSET cannot attach expiry, so
// keys written here persist until deleted or overwritten.
func (p *Redis) MSet(ctx context.Context, pairs map[string][]byte) error {
	if len(pairs) == 0 {
		return nil
	}
	args := make(map[string]any, len(pairs))
	for k, v := range pairs {
		args[k] = v
	}
	return p.rdb.MSet(ctx, args).Err()
}

func (p *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return p.rdb.Del(ctx, keys...).Result()
}

func (p *Redis) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return p.rdb.Scan(ctx, cursor, match, count).Result()
}

func (p *Redis) Ping(ctx context.Context) error {
	res, err := p.rdb.Ping(ctx).Result()
	if err != nil {
		return err
	}
	if res != pong {
		return fmt.Errorf("%w: %q", ErrUnexpectedPong, res)
	}
	return nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
