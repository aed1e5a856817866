package requery

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the client calls them
// inline on fetch and eviction paths. Wrap with hooks/async to decouple.
type Hooks interface {
	// A fetch attempt failed and will be retried.
	// failures is the consecutive failure count so far.
	FetchRetried(key string, failures int, err error)

	// Retries are exhausted; the entry moved to the error state.
	FetchFailed(key string, attempts int, err error)

	// An unused entry sat past its cache time and was removed.
	EntryEvicted(key string)

	// A persistence read/write failed. op ∈ {"get", "set", "del"}.
	PersistError(key, op string, err error)

	// A persisted record was rejected during hydration.
	// reason ∈ {"corrupt", "expired", "decode"}
	HydrateRejected(key, reason string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) FetchRetried(string, int, error) {}
func (NopHooks) FetchFailed(string, int, error)  {}
func (NopHooks) EntryEvicted(string)             {}
func (NopHooks) PersistError(string, string, error) {}
func (NopHooks) HydrateRejected(string, string)  {}
