package requery

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle     Status = "idle"     // created, no fetch started yet
	StatusFetching Status = "fetching" // initial fetch in flight, no data yet
	StatusSuccess  Status = "success"  // last fetch succeeded; data is set
	StatusError    Status = "error"    // retries exhausted; err is set
)

// entryConfig is the per-entry policy, bound from the owning query at
// ensure time. The resolver closes over the query arguments.
type entryConfig struct {
	resolver    func(ctx context.Context) (any, error) // nil for SetData-only entries
	staleTime   time.Duration
	cacheTime   time.Duration
	retry       RetryPolicy
	retryDelay  RetryDelayFunc
	persist     *persistBinding
	initialData func() any
	onSuccess   func(any)
	onError     func(error)
	onSettled   func(any, error)
}

// entry is one cached query result plus its subscriber set and timers.
// All fields are guarded by Client.mu.
type entry struct {
	key Key
	cfg entryConfig

	data         any
	hasData      bool
	err          error
	status       Status
	updatedAt    time.Time
	failureCount int
	stale        bool

	// version bumps on every observable state change; dataVersion only
	// when data or error identity changes. Observers filter on these.
	version     uint64
	dataVersion uint64

	subs    map[*observer]struct{}
	waiters []chan struct{}

	fetching bool
	// refetchPending records an invalidation (or data write) that landed
	// while a fetch was in flight; that fetch reruns the resolver instead
	// of clearing staleness with a result from before the invalidation.
	refetchPending bool
	hydrated       bool // persistence hydration attempted

	staleTimer *time.Timer
	gcTimer    *time.Timer
}

// snapshot is the untyped state handed to core observers. The typed layer
// wraps it into Result[V].
type snapshot struct {
	Data         any
	HasData      bool
	Err          error
	Status       Status
	IsFetching   bool
	IsStale      bool
	FailureCount int
	UpdatedAt    time.Time
}

func (c *Client) snapshotLocked(e *entry) snapshot {
	return snapshot{
		Data:         e.data,
		HasData:      e.hasData,
		Err:          e.err,
		Status:       e.status,
		IsFetching:   e.fetching,
		IsStale:      c.isStaleLocked(e),
		FailureCount: e.failureCount,
		UpdatedAt:    e.updatedAt,
	}
}

// isStaleLocked reports whether the entry's data is due for a refetch.
// No data counts as stale; staleTime zero means data is stale the moment
// it lands; Forever disables time-based staleness.
func (c *Client) isStaleLocked(e *entry) bool {
	if !e.hasData {
		return true
	}
	if e.stale {
		return true
	}
	st := e.cfg.staleTime
	switch {
	case st == 0:
		return true
	case st == Forever:
		return false
	default:
		return c.now().Sub(e.updatedAt) > st
	}
}
