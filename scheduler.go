package requery

import "time"

// armStaleTimerLocked schedules the staleness flip for e based on its
// updatedAt. Marking stale never triggers a fetch by itself; mount, focus,
// reconnect and interval policies act on the flag.
func (c *Client) armStaleTimerLocked(e *entry) {
	if e.staleTimer != nil {
		e.staleTimer.Stop()
		e.staleTimer = nil
	}
	st := e.cfg.staleTime
	switch {
	case st == 0:
		e.stale = true
		return
	case st == Forever:
		return
	}
	remaining := st - c.now().Sub(e.updatedAt)
	if remaining <= 0 {
		e.stale = true
		return
	}
	key := e.key
	e.staleTimer = time.AfterFunc(remaining, func() { c.markStale(key) })
}

func (c *Client) markStale(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || c.closed || e.stale {
		c.mu.Unlock()
		return
	}
	e.stale = true
	e.version++
	notif := c.notifyLocked(e)
	c.mu.Unlock()
	runAll(notif)
}

// armGCLocked starts the eviction countdown for an entry that just lost its
// last subscriber. Forever cache time keeps the entry alive indefinitely.
func (c *Client) armGCLocked(e *entry) {
	ct := e.cfg.cacheTime
	if ct == Forever {
		return
	}
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}
	key := e.key
	e.gcTimer = time.AfterFunc(ct, func() { c.evict(key) })
}

// evict removes key if it is still unused. A subscriber arriving after the
// timer fired but before the lock was taken wins.
func (c *Client) evict(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || c.closed || len(e.subs) > 0 {
		c.mu.Unlock()
		return
	}
	if e.fetching {
		// let the in-flight fetch land; restart the countdown
		c.armGCLocked(e)
		c.mu.Unlock()
		return
	}
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
	delete(c.entries, key)
	c.mu.Unlock()

	c.hooks.EntryEvicted(string(key))
	c.log.Debug("entry evicted", Fields{"key": string(key)})
}

// NotifyFocus signals that the surrounding environment regained focus.
// Stale entries with at least one focus-refetching subscriber are
// refetched.
func (c *Client) NotifyFocus() {
	c.refetchSignalled(func(o *observer) bool { return o.refetchOnFocus })
}

// NotifyReconnect signals that network connectivity came back.
func (c *Client) NotifyReconnect() {
	c.refetchSignalled(func(o *observer) bool { return o.refetchOnReconnect })
}

func (c *Client) refetchSignalled(want func(*observer) bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var targets []*entry
	for _, e := range c.entries {
		if e.cfg.resolver == nil || !c.isStaleLocked(e) {
			continue
		}
		for o := range e.subs {
			if !o.disabled && want(o) {
				targets = append(targets, e)
				break
			}
		}
	}
	c.mu.Unlock()

	for _, e := range targets {
		c.triggerFetch(e)
	}
}

// SetBackgrounded pauses or resumes interval refetching for observers that
// did not opt into background intervals.
func (c *Client) SetBackgrounded(backgrounded bool) {
	c.mu.Lock()
	c.backgrounded = backgrounded
	c.mu.Unlock()
}
