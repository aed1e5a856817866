package requery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	st "github.com/unkn0wn-root/requery/store"
)

// Options tune the client. All fields are optional; zero values pick the
// documented defaults.
type Options struct {
	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// Store enables persistence of successful results for queries that
	// carry a Persist codec. Closed together with the client.
	Store st.Store

	DefaultStaleTime  time.Duration  // 0 => data is stale immediately
	DefaultCacheTime  time.Duration  // unused entry retention; 0 => 5m, Forever => never gc
	DefaultRetry      RetryPolicy    // nil => RetryCount(3)
	DefaultRetryDelay RetryDelayFunc // nil => DefaultRetryDelay
}

// New builds a Client. The client is ready for use immediately and must be
// closed with Close to release timers and the persistence store.
func New(opts Options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		log:      opts.Logger,
		hooks:    opts.Hooks,
		store:    opts.Store,
		defStale: opts.DefaultStaleTime,
		defCache: coalesce(opts.DefaultCacheTime, defaultCacheTime),
		baseCtx:  ctx,
		cancel:   cancel,
		now:      time.Now,
		entries:  make(map[Key]*entry),
		queries:  make(map[string]struct{}),
	}
	if c.log == nil {
		c.log = NopLogger{}
	}
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	c.defRetry = opts.DefaultRetry
	if c.defRetry == nil {
		c.defRetry = RetryCount(defaultRetries)
	}
	c.defDelay = opts.DefaultRetryDelay
	if c.defDelay == nil {
		c.defDelay = DefaultRetryDelay
	}
	return c
}

// Client is the process-wide query cache. It owns all entries, coalesces
// fetches per key, and drives staleness, interval and gc timers.
type Client struct {
	log   Logger
	hooks Hooks
	store st.Store

	defStale time.Duration
	defCache time.Duration
	defRetry RetryPolicy
	defDelay RetryDelayFunc

	// baseCtx backs background refetches and persistence writes; cancelled
	// on Close so in-flight work can drain.
	baseCtx context.Context
	cancel  context.CancelFunc

	now func() time.Time // swapped in tests

	g  singleflight.Group
	wg sync.WaitGroup // persistence writers

	mu           sync.Mutex
	entries      map[Key]*entry
	queries      map[string]struct{}
	closed       bool
	backgrounded bool
}

// SetDataOptions tune Client/Query SetData behavior.
type SetDataOptions struct {
	// NoRefetch suppresses the background refetch that normally follows a
	// manual data write.
	NoRefetch bool
}

// RefetchOptions tune Observer.Refetch.
type RefetchOptions struct {
	// Force bypasses the staleness check.
	Force bool
	// ThrowOnError returns the fetch error to the caller instead of
	// logging and swallowing it.
	ThrowOnError bool
}
