package asidecache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/asidecache/codec"
	"github.com/unkn0wn-root/asidecache/internal/util"
	"github.com/unkn0wn-root/asidecache/internal/writeback"
	pr "github.com/unkn0wn-root/asidecache/provider"
)

// RepositoryOptions configure a Repository.
// Only Store and Registry are required; others have sensible defaults.
type RepositoryOptions struct {
	// Required
	Store    pr.Store
	Registry *Registry

	Name        string      // shows up in logs; e.g. "remote", "fallback"
	Extractors  *Extractors // nil => built-in extractors only
	Codec       codec.Codec // nil => codec.JSON{}
	Logger      Logger      // nil => NopLogger
	Hooks       Hooks       // nil => NopHooks
	ScanCount   int64       // SCAN hint and delete batch size; 0 => 100
	WriteFanout int         // concurrent per-key writes in SaveMany; 0 => 16
}

// Repository implements cache-aside reads and writes against one Store.
//
// Store failures are logged and reduced to a miss, a no-op or false.
// Entries that fail to decode are treated as misses and deleted in the
// background; Close drains those deletes. Only configuration errors (see
// errors.go) are returned.
//
// Operations are package-level generic functions (Find, FindOne, ...)
// because Go methods cannot take type parameters.
type Repository struct {
	name      string
	store     pr.Store
	reg       *Registry
	ext       *Extractors
	codec     codec.Codec
	log       Logger
	hooks     Hooks
	scanCount int64
	fanout    int
	heal      *writeback.Runner
}

func NewRepository(opts RepositoryOptions) (*Repository, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("asidecache: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("asidecache: registry is required")
	}

	r := &Repository{
		name:  coalesce(opts.Name, "remote"),
		store: opts.Store,
		reg:   opts.Registry,
		ext:   opts.Extractors,
	}
	if r.ext == nil {
		ext, err := NewExtractors()
		if err != nil {
			return nil, err
		}
		r.ext = ext
	}
	r.codec = coalesce[codec.Codec](opts.Codec, codec.JSON{})
	r.log = coalesce[Logger](opts.Logger, NopLogger{})
	r.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	r.scanCount = coalesce(opts.ScanCount, defaultScanCount)
	r.fanout = coalesce(opts.WriteFanout, defaultWriteFanout)
	r.heal = writeback.New(defaultHealWorkers, defaultHealQueue, func() {
		r.log.Debug("self-heal queue full; delete skipped", Fields{"repo": r.name})
	})
	return r, nil
}

func (r *Repository) Name() string        { return r.name }
func (r *Repository) Registry() *Registry { return r.reg }
func (r *Repository) Store() pr.Store     { return r.store }

// Find reads the single cached instance of a Singleton type.
func Find[T any](ctx context.Context, r *Repository) (T, bool, error) {
	var zero T
	k, err := r.resolve(typeOf[T](), Singleton, "find")
	if err != nil {
		return zero, false, err
	}
	key, _ := k.Key()
	var v T
	if !r.fetch(ctx, key, &v) {
		return zero, false, nil
	}
	return v, true, nil
}

// FindOne reads the instance of a Keyed type stored under id.
func FindOne[T any, ID any](ctx context.Context, r *Repository, id ID) (T, bool, error) {
	var zero T
	k, err := r.resolve(typeOf[T](), Keyed, "findOne")
	if err != nil {
		return zero, false, err
	}
	key, err := r.idKey(k, id)
	if err != nil {
		return zero, false, err
	}
	var v T
	if !r.fetch(ctx, key, &v) {
		return zero, false, nil
	}
	return v, true, nil
}

// FindMany reads many ids with one MGET. The result holds only ids with a
// live, decodable entry; nil ids are skipped. A store failure yields an
// empty map.
func FindMany[T any, ID comparable](ctx context.Context, r *Repository, ids []ID) (map[ID]T, error) {
	k, err := r.resolve(typeOf[T](), Keyed, "findMany")
	if err != nil {
		return nil, err
	}

	wanted := make([]ID, 0, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if isNil(any(id)) {
			continue
		}
		key, err := r.idKey(k, id)
		if err != nil {
			return nil, err
		}
		wanted = append(wanted, id)
		keys = append(keys, key)
	}

	out := make(map[ID]T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raws, err := r.store.MGet(ctx, keys)
	if err != nil {
		r.storeFailed("mget", k.Namespace(), err)
		return out, nil
	}

	var corrupt []string
	for i, raw := range raws {
		if i >= len(wanted) || len(raw) == 0 {
			continue
		}
		var v T
		if err := r.codec.Unmarshal(raw, &v); err != nil {
			r.log.Debug("undecodable entry in batch", Fields{"repo": r.name, "key": keys[i], "err": err})
			corrupt = append(corrupt, keys[i])
			continue
		}
		out[wanted[i]] = v
	}
	if len(corrupt) > 0 {
		r.selfHeal(ctx, corrupt...)
	}
	return out, nil
}

// Save stores the single instance of a Singleton type with the type's TTL.
// ok is false when the value could not be encoded or written.
func Save[T any](ctx context.Context, r *Repository, v T) (T, bool, error) {
	var zero T
	k, err := r.resolve(typeOf[T](), Singleton, "save")
	if err != nil {
		return zero, false, err
	}
	key, _ := k.Key()
	if !r.put(ctx, key, v, k.TTL()) {
		return zero, false, nil
	}
	return v, true, nil
}

// SaveWithID stores v under id for a Keyed type with the type's TTL.
func SaveWithID[T any, ID any](ctx context.Context, r *Repository, v T, id ID) (T, bool, error) {
	var zero T
	k, err := r.resolve(typeOf[T](), Keyed, "saveWithID")
	if err != nil {
		return zero, false, err
	}
	key, err := r.idKey(k, id)
	if err != nil {
		return zero, false, err
	}
	if !r.put(ctx, key, v, k.TTL()) {
		return zero, false, nil
	}
	return v, true, nil
}

// SaveMany stores every entry of items for a Keyed type.
//
// With a TTL configured, each key is written on its own with that TTL and
// the result is true when at least one write succeeded. Without a TTL a
// single atomic MSET is used and NO expiry is applied: the bulk primitive
// cannot carry one. An empty map returns false.
func SaveMany[T any, ID comparable](ctx context.Context, r *Repository, items map[ID]T) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}
	k, err := r.resolve(typeOf[T](), Keyed, "saveMany")
	if err != nil {
		return false, err
	}

	pairs := make(map[string][]byte, len(items))
	for id, v := range items {
		if isNil(any(id)) {
			continue
		}
		key, err := r.idKey(k, id)
		if err != nil {
			return false, err
		}
		b, err := r.codec.Marshal(v)
		if err != nil {
			r.log.Warn("encode failed; entry skipped", Fields{"repo": r.name, "key": key, "err": err})
			continue
		}
		pairs[key] = b
	}
	if len(pairs) == 0 {
		return false, nil
	}

	ttl := k.TTL()
	if ttl <= 0 {
		if err := r.store.MSet(ctx, pairs); err != nil {
			r.storeFailed("mset", k.Namespace(), err)
			return false, nil
		}
		return true, nil
	}

	var (
		stored atomic.Bool
		g      errgroup.Group
	)
	g.SetLimit(r.fanout)
	for key, b := range pairs {
		g.Go(func() error {
			if err := r.store.Set(ctx, key, b, ttl); err != nil {
				r.storeFailed("set", key, err)
				return nil
			}
			stored.Store(true)
			return nil
		})
	}
	_ = g.Wait()
	return stored.Load(), nil
}

// Delete removes the single instance of a Singleton type.
func Delete[T any](ctx context.Context, r *Repository) (bool, error) {
	k, err := r.resolve(typeOf[T](), Singleton, "delete")
	if err != nil {
		return false, err
	}
	key, _ := k.Key()
	return r.del(ctx, key) > 0, nil
}

// DeleteByID removes the entry of a Keyed type stored under id.
func DeleteByID[T any, ID any](ctx context.Context, r *Repository, id ID) (bool, error) {
	k, err := r.resolve(typeOf[T](), Keyed, "deleteByID")
	if err != nil {
		return false, err
	}
	key, err := r.idKey(k, id)
	if err != nil {
		return false, err
	}
	return r.del(ctx, key) > 0, nil
}

// DeleteAll removes every entry of T and returns how many keys went away.
// The count is negative when the backing store can't tell.
func DeleteAll[T any](ctx context.Context, r *Repository) (int64, error) {
	k, err := r.reg.Resolve(typeOf[T]())
	if err != nil {
		return 0, err
	}
	return r.deleteAll(ctx, k), nil
}

// DeleteAllByNamespace is DeleteAll addressed by namespace token.
func (r *Repository) DeleteAllByNamespace(ctx context.Context, namespace string) (int64, error) {
	k, err := r.reg.Lookup(namespace)
	if err != nil {
		return 0, err
	}
	return r.deleteAll(ctx, k), nil
}

func (r *Repository) deleteAll(ctx context.Context, k TypeKey) int64 {
	if k.Multiplicity() == Singleton {
		return r.del(ctx, k.Namespace())
	}
	if nc, ok := r.store.(pr.NamespaceClearer); ok {
		n, err := nc.ClearNamespace(ctx, k.Namespace())
		if err != nil {
			r.storeFailed("clear", k.Namespace(), err)
			return 0
		}
		return n
	}
	return r.scanDelete(ctx, k.Namespace())
}

// scanDelete walks the namespace with SCAN and deletes matches in batches
// of scanCount, summing the removed counts. Remote region entries
// (ns::key) match the same glob and are left alone.
func (r *Repository) scanDelete(ctx context.Context, namespace string) int64 {
	pattern := util.Pattern(namespace)
	var (
		total  atomic.Int64
		g      errgroup.Group
		cursor uint64
		batch  = make([]string, 0, r.scanCount)
	)
	g.SetLimit(4)
	flush := func() {
		keys := batch
		batch = make([]string, 0, r.scanCount)
		g.Go(func() error {
			total.Add(r.del(ctx, keys...))
			return nil
		})
	}

	for {
		keys, next, err := r.store.Scan(ctx, cursor, pattern, r.scanCount)
		if err != nil {
			r.storeFailed("scan", pattern, err)
			break
		}
		for _, key := range keys {
			if util.IsRegionKey(namespace, key) {
				continue
			}
			batch = append(batch, key)
			if int64(len(batch)) >= r.scanCount {
				flush()
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if len(batch) > 0 {
		flush()
	}
	_ = g.Wait()
	return total.Load()
}

func (r *Repository) resolve(t reflect.Type, want Multiplicity, op string) (TypeKey, error) {
	k, err := r.reg.Resolve(t)
	if err != nil {
		return TypeKey{}, err
	}
	if err := k.check(want, op); err != nil {
		return TypeKey{}, err
	}
	return k, nil
}

func (r *Repository) idKey(k TypeKey, id any) (string, error) {
	frag, err := r.ext.Extract(id)
	if err != nil {
		return "", err
	}
	return k.Key(frag)
}

// fetch loads key into out. Undecodable entries are deleted.
func (r *Repository) fetch(ctx context.Context, key string, out any) bool {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.storeFailed("get", key, err)
		return false
	}
	if !ok || len(raw) == 0 {
		return false
	}
	if err := r.codec.Unmarshal(raw, out); err != nil {
		r.log.Debug("undecodable entry", Fields{"repo": r.name, "key": key, "err": err})
		r.selfHeal(ctx, key)
		return false
	}
	return true
}

func (r *Repository) put(ctx context.Context, key string, v any, ttl time.Duration) bool {
	b, err := r.codec.Marshal(v)
	if err != nil {
		r.log.Warn("encode failed", Fields{"repo": r.name, "key": key, "err": err})
		return false
	}
	if err := r.store.Set(ctx, key, b, ttl); err != nil {
		r.storeFailed("set", key, err)
		return false
	}
	return true
}

func (r *Repository) del(ctx context.Context, keys ...string) int64 {
	n, err := r.store.Del(ctx, keys...)
	if err != nil {
		r.storeFailed("del", util.Namespace(keys[0]), err)
		return 0
	}
	return n
}

// selfHeal drops poisoned entries (e.g. left by an older schema) so they
// don't fail every future read. The delete runs detached; the read that
// found the entry returns its miss right away.
func (r *Repository) selfHeal(ctx context.Context, keys ...string) {
	for _, k := range keys {
		r.hooks.SelfHeal(k, "decode")
	}
	r.heal.Go(ctx, func(ctx context.Context) {
		if _, err := r.store.Del(ctx, keys...); err != nil {
			r.log.Debug("self-heal delete failed", Fields{"repo": r.name, "keys": keys, "err": err})
			return
		}
		r.log.Debug("self-heal delete done", Fields{"repo": r.name, "keys": keys})
	})
}

// Wait blocks until pending self-heal deletes have finished.
func (r *Repository) Wait() { r.heal.Wait() }

// Close drains pending self-heal deletes. The store is left open.
func (r *Repository) Close() { r.heal.Close() }

func (r *Repository) storeFailed(op, key string, err error) {
	if errors.Is(err, context.Canceled) {
		r.log.Debug("store call canceled", Fields{"repo": r.name, "op": op, "key": key})
		return
	}
	r.log.Warn("store call failed; degraded to miss", Fields{"repo": r.name, "op": op, "key": key, "err": err})
	r.hooks.StoreError(op, err)
}
