package requery

import (
	"context"
	"time"
)

// observeConfig is the resolved per-call-site policy for a core observer.
type observeConfig struct {
	onChange                    func(snapshot)
	notifyDataOnly              bool
	disabled                    bool
	forceFetchOnMount           bool
	refetchOnMount              bool
	refetchOnFocus              bool
	refetchOnReconnect          bool
	refetchInterval             time.Duration
	refetchIntervalInBackground bool
}

// observer is one live subscription to a cache entry. The typed layer
// wraps it as Observer[V]. Fields other than immutable policy are guarded
// by Client.mu.
type observer struct {
	c *Client
	e *entry

	onChange             func(snapshot)
	notifyDataOnly       bool
	disabled             bool
	refetchOnFocus       bool
	refetchOnReconnect   bool
	intervalEvery        time.Duration
	intervalInBackground bool

	lastDataVersion uint64
	intervalTimer   *time.Timer
	stopped         bool
}

func (o *observer) snapshot() snapshot {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	return o.c.snapshotLocked(o.e)
}

// wait blocks until the entry holds data (returned even when stale) or has
// settled into the error state with nothing cached.
func (o *observer) wait(ctx context.Context) (any, error) {
	c := o.c
	for {
		c.mu.Lock()
		switch {
		case c.closed:
			c.mu.Unlock()
			return nil, ErrClosed
		case o.stopped:
			c.mu.Unlock()
			return nil, ErrUnsubscribed
		case o.e.hasData:
			v := o.e.data
			c.mu.Unlock()
			return v, nil
		case o.e.status == StatusError:
			err := o.e.err
			c.mu.Unlock()
			return nil, err
		}
		w := make(chan struct{})
		o.e.waiters = append(o.e.waiters, w)
		c.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// refetch forces or requests a fetch for the observed entry. Without Force
// a fresh entry is left alone. Failures are logged and swallowed unless
// ThrowOnError.
func (o *observer) refetch(ctx context.Context, opts RefetchOptions) error {
	c := o.c
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	fresh := o.e.hasData && !c.isStaleLocked(o.e)
	c.mu.Unlock()

	if !opts.Force && fresh {
		return nil
	}
	ch := c.startFetch(o.e)
	select {
	case res := <-ch:
		if res.Err == nil {
			return nil
		}
		if opts.ThrowOnError {
			return res.Err
		}
		c.log.Warn("refetch failed", Fields{"key": string(o.e.key), "err": res.Err})
		return nil
	case <-ctx.Done():
		// the fetch keeps running; only this caller stops waiting
		return ctx.Err()
	}
}

func (o *observer) armInterval() {
	if o.intervalEvery <= 0 {
		return
	}
	c := o.c
	c.mu.Lock()
	if !o.stopped && !c.closed {
		o.intervalTimer = time.AfterFunc(o.intervalEvery, o.intervalTick)
	}
	c.mu.Unlock()
}

func (o *observer) intervalTick() {
	c := o.c
	c.mu.Lock()
	dead := o.stopped || c.closed
	paused := c.backgrounded && !o.intervalInBackground
	hasResolver := o.e.cfg.resolver != nil
	c.mu.Unlock()
	if dead {
		return
	}
	if !o.disabled && !paused && hasResolver {
		c.triggerFetch(o.e)
	}
	o.armInterval()
}
