package requery

import (
	"context"
	"time"

	co "github.com/unkn0wn-root/requery/codec"
)

// Resolver produces query data for a set of arguments. Errors are retried
// per the query's retry policy.
type Resolver[A, V any] func(ctx context.Context, args A) (V, error)

// QueryOptions are per-query defaults shared by all observers and
// imperative calls of the query.
type QueryOptions[A, V any] struct {
	StaleTime  time.Duration  // 0 => client default
	CacheTime  time.Duration  // 0 => client default; Forever => never gc
	Retry      RetryPolicy    // nil => client default
	RetryDelay RetryDelayFunc // nil => client default

	// ArgsCodec encodes arguments for key building. Must be deterministic;
	// nil selects deterministic CBOR.
	ArgsCodec co.Codec[A]

	// Persist enables write-through persistence of successful results when
	// the client carries a Store.
	Persist co.Codec[V]

	// InitialData seeds a freshly created entry. Invoked at most once per
	// entry lifetime; its panic/failure discipline is the caller's.
	InitialData func() V

	// Side-effect-only completion callbacks. They cannot transform the
	// cached value.
	OnSuccess func(V)
	OnError   func(error)
	OnSettled func(v V, err error)
}

// ObserveOptions are per-call-site knobs. Refetch-on-mount, focus and
// reconnect behaviors default to enabled and are switched off with the
// Disable flags.
type ObserveOptions[V any] struct {
	// OnChange is invoked after every state change of the observed entry.
	OnChange func(Result[V])

	// NotifyDataOnly limits OnChange to data/error identity changes.
	NotifyDataOnly bool

	// Disabled suspends automatic fetching for this observer.
	Disabled bool

	// ForceFetchOnMount fetches on subscribe even when data is fresh.
	ForceFetchOnMount bool

	DisableRefetchOnMount     bool
	DisableRefetchOnFocus     bool
	DisableRefetchOnReconnect bool

	// RefetchInterval > 0 refetches at a fixed period while subscribed.
	// Paused while the client is backgrounded unless
	// RefetchIntervalInBackground.
	RefetchInterval             time.Duration
	RefetchIntervalInBackground bool
}

// Result is the typed state of an observed entry.
type Result[V any] struct {
	Data         V
	HasData      bool
	Err          error
	Status       Status
	IsFetching   bool
	IsStale      bool
	FailureCount int
	UpdatedAt    time.Time
}

func resultFrom[V any](s snapshot) Result[V] {
	r := Result[V]{
		HasData:      s.HasData,
		Err:          s.Err,
		Status:       s.Status,
		IsFetching:   s.IsFetching,
		IsStale:      s.IsStale,
		FailureCount: s.FailureCount,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.HasData {
		r.Data = s.Data.(V)
	}
	return r
}

// Query is a typed query definition: a name, a resolver and shared policy.
type Query[A, V any] struct {
	c        *Client
	name     string
	resolver Resolver[A, V]
	opts     QueryOptions[A, V]
	args     co.Codec[A]
}

// NewQuery registers a query definition on the client. The name scopes the
// key space and must be unique per client.
func NewQuery[A, V any](c *Client, name string, r Resolver[A, V], opts QueryOptions[A, V]) (*Query[A, V], error) {
	if err := c.registerQuery(name); err != nil {
		return nil, err
	}
	args := opts.ArgsCodec
	if args == nil {
		cb, err := co.NewCBOR[A](true)
		if err != nil {
			return nil, err
		}
		args = cb
	}
	return &Query[A, V]{c: c, name: name, resolver: r, opts: opts, args: args}, nil
}

// Key derives the cache key for args.
func (q *Query[A, V]) Key(args A) (Key, error) {
	b, err := q.args.Encode(args)
	if err != nil {
		return "", err
	}
	return buildKey(q.name, b), nil
}

// entryConfig binds args into an untyped per-entry policy.
func (q *Query[A, V]) entryConfig(args A) entryConfig {
	cfg := entryConfig{
		staleTime:  coalesce(q.opts.StaleTime, q.c.defStale),
		cacheTime:  coalesce(q.opts.CacheTime, q.c.defCache),
		retry:      q.opts.Retry,
		retryDelay: q.opts.RetryDelay,
	}
	if cfg.retry == nil {
		cfg.retry = q.c.defRetry
	}
	if cfg.retryDelay == nil {
		cfg.retryDelay = q.c.defDelay
	}
	if q.resolver != nil {
		r := q.resolver
		cfg.resolver = func(ctx context.Context) (any, error) {
			return r(ctx, args)
		}
	}
	if q.opts.Persist != nil {
		p := q.opts.Persist
		cfg.persist = &persistBinding{
			encode: func(v any) ([]byte, error) { return p.Encode(v.(V)) },
			decode: func(b []byte) (any, error) { return p.Decode(b) },
		}
	}
	if q.opts.InitialData != nil {
		init := q.opts.InitialData
		cfg.initialData = func() any { return init() }
	}
	if q.opts.OnSuccess != nil {
		cb := q.opts.OnSuccess
		cfg.onSuccess = func(v any) { cb(v.(V)) }
	}
	if q.opts.OnError != nil {
		cfg.onError = q.opts.OnError
	}
	if q.opts.OnSettled != nil {
		cb := q.opts.OnSettled
		cfg.onSettled = func(v any, err error) {
			var tv V
			if v != nil {
				tv = v.(V)
			}
			cb(tv, err)
		}
	}
	return cfg
}

// Observe subscribes to the entry for args. ctx bounds hydration from the
// persistence store only. The returned observer must be unsubscribed to
// start the entry's gc countdown.
func (q *Query[A, V]) Observe(ctx context.Context, args A, opts ObserveOptions[V]) (*Observer[V], error) {
	key, err := q.Key(args)
	if err != nil {
		return nil, err
	}
	oc := observeConfig{
		notifyDataOnly:              opts.NotifyDataOnly,
		disabled:                    opts.Disabled,
		forceFetchOnMount:           opts.ForceFetchOnMount,
		refetchOnMount:              !opts.DisableRefetchOnMount,
		refetchOnFocus:              !opts.DisableRefetchOnFocus,
		refetchOnReconnect:          !opts.DisableRefetchOnReconnect,
		refetchInterval:             opts.RefetchInterval,
		refetchIntervalInBackground: opts.RefetchIntervalInBackground,
	}
	if opts.OnChange != nil {
		cb := opts.OnChange
		oc.onChange = func(s snapshot) { cb(resultFrom[V](s)) }
	}
	core, err := q.c.observe(ctx, key, q.entryConfig(args), oc)
	if err != nil {
		return nil, err
	}
	return &Observer[V]{o: core}, nil
}

// Fetch returns fresh-enough cached data or runs (or joins) a fetch.
func (q *Query[A, V]) Fetch(ctx context.Context, args A) (V, error) {
	var zero V
	key, err := q.Key(args)
	if err != nil {
		return zero, err
	}
	c := q.c
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	cfg := q.entryConfig(args)
	e := c.ensureLocked(key, &cfg)
	if len(e.subs) == 0 {
		// imperative use restarts the unused-entry countdown
		c.armGCLocked(e)
	}
	if e.hasData && !c.isStaleLocked(e) {
		v := e.data
		c.mu.Unlock()
		return v.(V), nil
	}
	c.mu.Unlock()

	ch := c.startFetch(e)
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Data peeks at the cached value for args without fetching.
func (q *Query[A, V]) Data(args A) (V, bool) {
	var zero V
	key, err := q.Key(args)
	if err != nil {
		return zero, false
	}
	c := q.c
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return zero, false
	}
	return e.data.(V), true
}

// SetData writes v into the entry for args, marking it stale. A background
// refetch follows unless opts.NoRefetch.
func (q *Query[A, V]) SetData(args A, v V, opts SetDataOptions) error {
	return q.UpdateData(args, func(V, bool) V { return v }, opts)
}

// UpdateData applies a pure transform of the previous value (ok reports
// whether one existed). Same refetch semantics as SetData.
func (q *Query[A, V]) UpdateData(args A, fn func(prev V, ok bool) V, opts SetDataOptions) error {
	key, err := q.Key(args)
	if err != nil {
		return err
	}
	// bind the resolver so the follow-up refetch has one even when the
	// entry is created by this write
	q.c.mu.Lock()
	if q.c.closed {
		q.c.mu.Unlock()
		return ErrClosed
	}
	cfg := q.entryConfig(args)
	q.c.ensureLocked(key, &cfg)
	q.c.mu.Unlock()

	return q.c.setData(key, func(prev any, ok bool) any {
		var tv V
		if ok {
			tv = prev.(V)
		}
		return fn(tv, ok)
	}, opts)
}

// Invalidate marks the entry for args stale, refetching when subscribed.
func (q *Query[A, V]) Invalidate(args A) error {
	key, err := q.Key(args)
	if err != nil {
		return err
	}
	q.c.Invalidate(key)
	return nil
}

// InvalidateAll invalidates every cached entry of this query.
func (q *Query[A, V]) InvalidateAll() {
	q.c.InvalidateQuery(q.name)
}

// Observer is a typed live subscription.
type Observer[V any] struct {
	o *observer
}

// Snapshot returns the current state of the observed entry.
func (ob *Observer[V]) Snapshot() Result[V] {
	return resultFrom[V](ob.o.snapshot())
}

// Wait blocks until data is available (returned even when stale) or the
// entry settles into the error state with nothing cached.
func (ob *Observer[V]) Wait(ctx context.Context) (V, error) {
	var zero V
	v, err := ob.o.wait(ctx)
	if err != nil {
		return zero, err
	}
	return v.(V), nil
}

// Refetch requests or forces a fetch. See RefetchOptions.
func (ob *Observer[V]) Refetch(ctx context.Context, opts RefetchOptions) error {
	return ob.o.refetch(ctx, opts)
}

// Unsubscribe detaches the observer. Idempotent. The entry's gc countdown
// starts when the last observer leaves.
func (ob *Observer[V]) Unsubscribe() {
	ob.o.c.unsubscribe(ob.o)
}
