// Package provider defines the storage contracts used by asidecache.
//
// Store is the remote, shared key-value service (redis in production).
// Region is a named, process-local expiring map used while the remote
// store is unreachable. Implementations MUST be safe for concurrent use and
// byte-for-byte transparent: Get returns exactly the bytes given to Set.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrScanUnsupported is returned by stores that cannot enumerate keys.
	ErrScanUnsupported = errors.New("provider: scan not supported")
	// ErrRejected is returned when a store refused a write (admission/pressure).
	ErrRejected = errors.New("provider: write rejected")
)

// Store is the remote store protocol.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// MGet returns one slot per key, in order. A nil slot is a miss.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// MSet stores all pairs in one call. There is no per-key expiry.
	MSet(ctx context.Context, pairs map[string][]byte) error

	// Del removes keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Scan runs one incremental scan step over keys matching the glob.
	// A returned cursor of 0 ends the iteration.
	Scan(ctx context.Context, cursor uint64, match string, count int64) (keys []string, next uint64, err error)

	// Ping succeeds only when the store answered with its success token.
	Ping(ctx context.Context) error

	Close(ctx context.Context) error
}

// NamespaceClearer is implemented by stores that can drop a whole
// namespace without scanning. The count is -1 when the store can't tell.
type NamespaceClearer interface {
	ClearNamespace(ctx context.Context, namespace string) (int64, error)
}

// Region is a named in-process cache with a TTL fixed at construction.
type Region interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	// Clear drops every entry of the region.
	Clear(ctx context.Context) error
	Close(ctx context.Context) error
}

// RegionFactory builds a region. ttl <= 0 means entries do not expire.
type RegionFactory func(name string, ttl time.Duration) (Region, error)
