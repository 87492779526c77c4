package asidecache

import (
	"context"
	"fmt"
	"maps"

	"github.com/unkn0wn-root/asidecache/internal/writeback"
)

type LoaderOptions struct {
	Remote   *Repository // required
	Fallback *Repository // nil => always Remote
	Liveness Liveness    // nil => always Remote

	WriteWorkers int // 0 => 4
	WriteQueue   int // 0 => 1024

	Logger Logger
	Hooks  Hooks
}

// Loader reads through a Repository and falls back to a supplier on a
// miss. Fetched values are written back in the background: the caller
// gets its value as soon as the supplier returns, and write-back failures
// never reach it.
type Loader struct {
	remote   *Repository
	fallback *Repository
	live     Liveness
	wb       *writeback.Runner
	log      Logger
	hooks    Hooks
}

func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("asidecache: remote repository is required")
	}
	l := &Loader{
		remote:   opts.Remote,
		fallback: opts.Fallback,
		live:     opts.Liveness,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	l.wb = writeback.New(
		coalesce(opts.WriteWorkers, defaultWriteWorkers),
		coalesce(opts.WriteQueue, defaultWriteQueue),
		func() {
			l.log.Warn("write-back queue full; dropping", nil)
			l.hooks.WriteBackFailed("", ErrWriteBackDropped)
		},
	)
	return l, nil
}

// Repository returns the repository for the current liveness state.
func (l *Loader) Repository() *Repository {
	if l.fallback == nil || l.live == nil || l.live.Alive() {
		return l.remote
	}
	return l.fallback
}

// Wait blocks until every pending write-back has finished.
func (l *Loader) Wait() { l.wb.Wait() }

// Close drains pending write-backs and rejects new ones.
func (l *Loader) Close() { l.wb.Close() }

func (l *Loader) writeBack(ctx context.Context, repo *Repository, namespace string, save func(context.Context) (bool, error)) {
	l.wb.Go(ctx, func(ctx context.Context) {
		ok, err := save(ctx)
		if err == nil && !ok {
			err = ErrNotStored
		}
		if err != nil {
			l.log.Warn("write-back failed", Fields{"repo": repo.Name(), "ns": namespace, "err": err})
			l.hooks.WriteBackFailed(namespace, err)
		}
	})
}

// LoadOrFetch returns the cached Singleton T, or calls supplier and
// caches its result in the background.
func LoadOrFetch[T any](ctx context.Context, l *Loader, supplier func(context.Context) (T, error)) (T, error) {
	repo := l.Repository()
	v, ok, err := Find[T](ctx, repo)
	if err != nil || ok {
		return v, err
	}
	v, err = supplier(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if isNil(any(v)) {
		return v, nil
	}
	k, _ := repo.reg.Resolve(typeOf[T]())
	l.writeBack(ctx, repo, k.Namespace(), func(ctx context.Context) (bool, error) {
		_, ok, err := Save(ctx, repo, v)
		return ok, err
	})
	return v, nil
}

// LoadOrFetchByID is LoadOrFetch for one id of a Keyed type.
func LoadOrFetchByID[T any, ID any](ctx context.Context, l *Loader, id ID, supplier func(context.Context, ID) (T, error)) (T, error) {
	repo := l.Repository()
	v, ok, err := FindOne[T](ctx, repo, id)
	if err != nil || ok {
		return v, err
	}
	v, err = supplier(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if isNil(any(v)) {
		return v, nil
	}
	k, _ := repo.reg.Resolve(typeOf[T]())
	l.writeBack(ctx, repo, k.Namespace(), func(ctx context.Context) (bool, error) {
		_, ok, err := SaveWithID(ctx, repo, v, id)
		return ok, err
	})
	return v, nil
}

// LoadOrFetchMany returns the cached entries for ids and asks supplier only
// for the ones missing. Everything the supplier returns is merged into the
// result and cached in the background.
func LoadOrFetchMany[T any, ID comparable](ctx context.Context, l *Loader, ids []ID, supplier func(context.Context, []ID) (map[ID]T, error)) (map[ID]T, error) {
	repo := l.Repository()
	out, err := FindMany[T](ctx, repo, ids)
	if err != nil {
		return nil, err
	}

	missing := make([]ID, 0, len(ids)-len(out))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if isNil(any(id)) {
			continue
		}
		if _, hit := out[id]; hit {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := supplier(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return out, nil
	}
	maps.Copy(out, fetched)

	toSave := maps.Clone(fetched)
	k, _ := repo.reg.Resolve(typeOf[T]())
	l.writeBack(ctx, repo, k.Namespace(), func(ctx context.Context) (bool, error) {
		return SaveMany(ctx, repo, toSave)
	})
	return out, nil
}
