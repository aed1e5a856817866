package requery

import (
	"context"
)

// registerQuery reserves a query name so two definitions cannot collide in
// the shared key space.
func (c *Client) registerQuery(name string) error {
	if err := validateQueryName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, dup := c.queries[name]; dup {
		return &DuplicateQueryError{Name: name}
	}
	c.queries[name] = struct{}{}
	return nil
}

// ensureLocked returns the entry for key, creating it when absent. A nil
// cfg creates a bare entry carrying the client defaults (SetData on a key
// that was never observed). An existing resolver-less entry adopts cfg the
// first time a real query binds to it.
func (c *Client) ensureLocked(key Key, cfg *entryConfig) *entry {
	e, ok := c.entries[key]
	if ok {
		if e.cfg.resolver == nil && cfg != nil && cfg.resolver != nil {
			e.cfg = *cfg
		}
		return e
	}

	e = &entry{
		key:    key,
		status: StatusIdle,
		subs:   make(map[*observer]struct{}),
	}
	if cfg != nil {
		e.cfg = *cfg
	} else {
		e.cfg = entryConfig{
			staleTime:  c.defStale,
			cacheTime:  c.defCache,
			retry:      c.defRetry,
			retryDelay: c.defDelay,
		}
	}
	if e.cfg.initialData != nil {
		// invoked at most once, on entry creation
		e.data = e.cfg.initialData()
		e.hasData = true
		e.status = StatusSuccess
		e.updatedAt = c.now()
		e.dataVersion++
		e.version++
		c.armStaleTimerLocked(e)
	}
	c.entries[key] = e
	// a new entry starts with zero subscribers; the countdown keeps
	// imperative-only entries (Fetch/SetData without an observer)
	// collectable. observe stops it when the first subscriber arrives.
	c.armGCLocked(e)
	return e
}

// notifyLocked wakes Wait-ers and collects observer callbacks for the
// entry's current state. Callers must run the returned funcs after
// releasing the lock; user callbacks may re-enter the client.
func (c *Client) notifyLocked(e *entry) []func() {
	for _, w := range e.waiters {
		close(w)
	}
	e.waiters = nil

	if len(e.subs) == 0 {
		return nil
	}
	snap := c.snapshotLocked(e)
	var out []func()
	for o := range e.subs {
		if o.onChange == nil {
			continue
		}
		if o.notifyDataOnly && o.lastDataVersion == e.dataVersion {
			continue
		}
		o.lastDataVersion = e.dataVersion
		cb := o.onChange
		out = append(out, func() { cb(snap) })
	}
	return out
}

func runAll(fns []func()) {
	for _, f := range fns {
		f()
	}
}

// setData writes a value (or a transform of the previous value) into the
// entry for key. Per the update contract the entry is marked stale and,
// unless opts.NoRefetch, a single background refetch is requested.
func (c *Client) setData(key Key, update func(prev any, ok bool) any, opts SetDataOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	e := c.ensureLocked(key, nil)
	v := update(e.data, e.hasData)
	e.data = v
	e.hasData = true
	e.err = nil
	e.status = StatusSuccess
	e.failureCount = 0
	e.updatedAt = c.now()
	e.stale = true
	e.dataVersion++
	e.version++
	at := e.updatedAt
	pb := e.cfg.persist
	cacheTime := e.cfg.cacheTime
	refetch := !opts.NoRefetch && e.cfg.resolver != nil
	if refetch && e.fetching {
		// the in-flight fetch resolved against the pre-write state; have
		// it rerun instead of racing a second singleflight call
		e.refetchPending = true
		refetch = false
	}
	if len(e.subs) == 0 {
		c.armGCLocked(e)
	}
	notif := c.notifyLocked(e)
	c.mu.Unlock()

	runAll(notif)
	c.persistAsync(key, pb, cacheTime, v, at)
	if refetch {
		c.triggerFetch(e)
	}
	return nil
}

// Invalidate marks the entry for key stale and refetches it when it has
// active subscribers. Unknown keys are a no-op.
func (c *Client) Invalidate(key Key) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.stale = true
	e.version++
	active := len(e.subs) > 0 && e.cfg.resolver != nil
	if active && e.fetching {
		// the in-flight fetch predates this invalidation; it reruns on
		// completion rather than clearing the stale flag with old data
		e.refetchPending = true
		active = false
	}
	notif := c.notifyLocked(e)
	c.mu.Unlock()

	runAll(notif)
	if active {
		c.triggerFetch(e)
	}
}

// InvalidateQuery invalidates every cached entry belonging to the named
// query.
func (c *Client) InvalidateQuery(name string) {
	prefix := name + ":"
	c.mu.Lock()
	var keys []Key
	for k := range c.entries {
		if len(k) > len(prefix) && string(k[:len(prefix)]) == prefix {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.Invalidate(k)
	}
}

// observe subscribes a new core observer to key, hydrating and fetching
// per policy. ctx covers hydration reads only; the subscription itself has
// no deadline.
func (c *Client) observe(ctx context.Context, key Key, cfg entryConfig, oc observeConfig) (*observer, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.ensureLocked(key, &cfg)
	o := &observer{
		c:                    c,
		e:                    e,
		onChange:             oc.onChange,
		notifyDataOnly:       oc.notifyDataOnly,
		disabled:             oc.disabled,
		refetchOnFocus:       oc.refetchOnFocus,
		refetchOnReconnect:   oc.refetchOnReconnect,
		intervalEvery:        oc.refetchInterval,
		intervalInBackground: oc.refetchIntervalInBackground,
		lastDataVersion:      e.dataVersion,
	}
	e.subs[o] = struct{}{}
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	needHydrate := !e.hydrated && e.cfg.persist != nil && c.store != nil
	e.hydrated = true
	c.mu.Unlock()

	if needHydrate {
		c.hydrate(ctx, e)
	}

	c.mu.Lock()
	should := !oc.disabled && e.cfg.resolver != nil &&
		(oc.forceFetchOnMount || !e.hasData || (oc.refetchOnMount && c.isStaleLocked(e)))
	c.mu.Unlock()
	if should {
		c.triggerFetch(e)
	}
	o.armInterval()
	return o, nil
}

// unsubscribe detaches o from its entry and arms the gc timer when the
// last subscriber leaves. Idempotent.
func (c *Client) unsubscribe(o *observer) {
	c.mu.Lock()
	if o.stopped {
		c.mu.Unlock()
		return
	}
	o.stopped = true
	if o.intervalTimer != nil {
		o.intervalTimer.Stop()
		o.intervalTimer = nil
	}
	e := o.e
	delete(e.subs, o)
	// wake Wait-ers so ones belonging to this observer can bail out
	for _, w := range e.waiters {
		close(w)
	}
	e.waiters = nil
	if len(e.subs) == 0 && !c.closed {
		c.armGCLocked(e)
	}
	c.mu.Unlock()
}

// Close stops all timers, releases waiters, drains persistence writers and
// closes the store. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, e := range c.entries {
		if e.staleTimer != nil {
			e.staleTimer.Stop()
		}
		if e.gcTimer != nil {
			e.gcTimer.Stop()
		}
		for _, w := range e.waiters {
			close(w)
		}
		e.waiters = nil
	}
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}

// Len reports the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
