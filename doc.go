// Package asidecache is a failover-aware cache-aside layer for domain objects.
//
// Callers get-or-compute values by Go type (and optionally by id). Freshly
// computed values are written back to a shared remote store (redis) in the
// background. When the remote store stops answering its liveness probe,
// reads and writes move to process-local fallback regions; when it comes
// back, the fallback regions are wiped so they never serve data from before
// the outage.
//
// Components:
//   - Registry: Go type -> namespace token, multiplicity (Singleton/Keyed), TTL.
//   - Extractors: id value -> key fragment, looked up by dynamic type.
//   - Repository: cache-aside operations over a provider.Store.
//   - Monitor: periodic PING of the remote store; owns the alive flag.
//   - Regions: named region sets; NewStoreRegions over the remote store,
//     NewLocalRegions over an in-process engine (ristretto, bigcache).
//   - FallbackStore: local regions presented as a provider.Store, so the
//     same Repository code serves the fallback path.
//   - Selector: routes region lookups to remote or fallback regions; Cached
//     is the read-through helper on top of any Manager.
//   - Loader: LoadOrFetch family; supplier on miss, async write-back.
//
// Keys:
//
//	<ns>             - Singleton types
//	<ns>:<fragment>  - Keyed types; composite ids join components with ':'
//
// Transient store failures never reach callers: reads degrade to misses and
// writes to no-ops. Configuration mistakes (unregistered type, id passed to
// a Singleton, duplicate extractor) are returned as errors.
package asidecache
