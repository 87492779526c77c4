package asidecache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// An entry was deleted on read because it could not be decoded.
	// reason ∈ {"decode"}
	SelfHeal(storageKey, reason string)

	// A store call failed and was reduced to a miss/no-op.
	// op ∈ {"get", "mget", "set", "mset", "del", "scan", "clear"}
	StoreError(op string, err error)

	// A detached write-back after a miss did not persist.
	WriteBackFailed(namespace string, err error)

	// The liveness monitor flipped state.
	LivenessChanged(alive bool)

	// Fallback regions were wiped after the remote store recovered.
	FallbackCleared(regions int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)       {}
func (NopHooks) StoreError(string, error)      {}
func (NopHooks) WriteBackFailed(string, error) {}
func (NopHooks) LivenessChanged(bool)          {}
func (NopHooks) FallbackCleared(int)           {}
