package requery

import (
	"time"

	"golang.org/x/sync/singleflight"
)

// triggerFetch requests a background fetch for e. Concurrent triggers for
// the same key join the in-flight call; results land on the entry either
// way, so the per-caller channel is dropped.
func (c *Client) triggerFetch(e *entry) {
	_ = c.startFetch(e)
}

// startFetch begins (or joins) the single in-flight fetch for e's key and
// returns a channel carrying the shared outcome.
func (c *Client) startFetch(e *entry) <-chan singleflight.Result {
	return c.g.DoChan(string(e.key), func() (any, error) {
		return c.runFetch(e)
	})
}

// runFetch executes the entry's resolver under the retry policy and writes
// the outcome back onto the entry. It runs on the client's base context so
// unmounting callers never cancel a fetch other subscribers depend on.
func (c *Client) runFetch(e *entry) (any, error) {
	ctx := c.baseCtx

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	cfg := e.cfg
	if cfg.resolver == nil {
		c.mu.Unlock()
		return nil, &FetchError{Key: string(e.key), Attempts: 0, Err: ErrNoResolver}
	}
	e.fetching = true
	if !e.hasData && e.status != StatusError {
		e.status = StatusFetching
	}
	e.version++
	notif := c.notifyLocked(e)
	c.mu.Unlock()
	runAll(notif)

	failures := 0
	for {
		v, err := cfg.resolver(ctx)
		if err == nil {
			if c.completeSuccess(e, cfg, v) {
				// an invalidation or data write landed mid-fetch; rerun
				// within the same singleflight call
				failures = 0
				continue
			}
			return v, nil
		}

		failures++
		c.mu.Lock()
		e.failureCount = failures
		e.version++
		notif = c.notifyLocked(e)
		c.mu.Unlock()
		runAll(notif)

		if ctx.Err() != nil || !cfg.retry.ShouldRetry(failures, err) {
			ferr := &FetchError{Key: string(e.key), Attempts: failures, Err: err}
			c.completeError(e, cfg, ferr)
			return nil, ferr
		}

		c.hooks.FetchRetried(string(e.key), failures, err)
		c.log.Debug("fetch attempt failed; retrying", Fields{
			"key": string(e.key), "failures": failures, "err": err,
		})
		select {
		case <-ctx.Done():
			ferr := &FetchError{Key: string(e.key), Attempts: failures, Err: ctx.Err()}
			c.completeError(e, cfg, ferr)
			return nil, ferr
		case <-time.After(cfg.retryDelay(failures)):
		}
	}
}

// completeSuccess writes the fetched value onto the entry. It reports
// whether the fetch must rerun because the entry was invalidated (or
// written to) while the resolver was running; in that case the entry stays
// stale and fetching.
func (c *Client) completeSuccess(e *entry, cfg entryConfig, v any) (rerun bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	rerun = e.refetchPending
	e.refetchPending = false
	e.data = v
	e.hasData = true
	e.err = nil
	e.status = StatusSuccess
	e.failureCount = 0
	e.updatedAt = c.now()
	e.stale = rerun
	e.fetching = rerun
	e.dataVersion++
	e.version++
	at := e.updatedAt
	c.armStaleTimerLocked(e)
	notif := c.notifyLocked(e)
	c.mu.Unlock()

	runAll(notif)
	if cfg.onSuccess != nil {
		cfg.onSuccess(v)
	}
	if cfg.onSettled != nil {
		cfg.onSettled(v, nil)
	}
	c.persistAsync(e.key, cfg.persist, cfg.cacheTime, v, at)
	return rerun
}

func (c *Client) completeError(e *entry, cfg entryConfig, ferr *FetchError) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e.err = ferr
	e.status = StatusError
	e.fetching = false
	e.refetchPending = false // the entry is already stale; do not loop on failure
	e.dataVersion++
	e.version++
	notif := c.notifyLocked(e)
	c.mu.Unlock()

	runAll(notif)
	c.hooks.FetchFailed(string(e.key), ferr.Attempts, ferr.Err)
	c.log.Warn("fetch failed", Fields{
		"key": string(e.key), "attempts": ferr.Attempts, "err": ferr.Err,
	})
	if cfg.onError != nil {
		cfg.onError(ferr)
	}
	if cfg.onSettled != nil {
		cfg.onSettled(nil, ferr)
	}
}
