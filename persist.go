package requery

import (
	"context"
	"time"

	"github.com/unkn0wn-root/requery/internal/wire"
)

// persistBinding is the untyped encode/decode pair for a persisted query,
// derived from its codec.Codec[V].
type persistBinding struct {
	encode func(any) ([]byte, error)
	decode func([]byte) (any, error)
}

// persistAsync writes a successful result through to the store. Best
// effort: failures are logged and hooked, never surfaced to the fetch.
func (c *Client) persistAsync(key Key, pb *persistBinding, cacheTime time.Duration, v any, at time.Time) {
	if c.store == nil || pb == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		payload, err := pb.encode(v)
		if err != nil {
			c.hooks.PersistError(string(key), "set", err)
			c.log.Warn("persist encode failed", Fields{"key": string(key), "err": err})
			return
		}
		rec := wire.Encode(at.UnixNano(), payload)
		ttl := cacheTime
		if ttl == Forever {
			ttl = 0 // store-side no expiry
		}
		ok, err := c.store.Set(c.baseCtx, string(key), rec, int64(len(rec)), ttl)
		if err != nil {
			c.hooks.PersistError(string(key), "set", err)
			c.log.Warn("persist write failed", Fields{"key": string(key), "err": err})
			return
		}
		if !ok {
			c.log.Debug("persist write rejected by store (pressure)", Fields{"key": string(key)})
		}
	}()
}

// hydrate seeds a freshly created entry from the store. Corrupt, expired or
// undecodable records are rejected and deleted so they cannot poison the
// next start.
func (c *Client) hydrate(ctx context.Context, e *entry) {
	key := string(e.key)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.hooks.PersistError(key, "get", err)
		c.log.Warn("hydrate read failed", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		return
	}

	nanos, payload, err := wire.Decode(raw)
	if err != nil {
		c.rejectRecord(ctx, key, "corrupt")
		return
	}
	at := time.Unix(0, nanos)

	c.mu.Lock()
	ct := e.cfg.cacheTime
	pb := e.cfg.persist
	c.mu.Unlock()
	if pb == nil {
		return
	}
	if ct != Forever && c.now().Sub(at) > ct {
		c.rejectRecord(ctx, key, "expired")
		return
	}
	v, err := pb.decode(payload)
	if err != nil {
		c.rejectRecord(ctx, key, "decode")
		return
	}

	c.mu.Lock()
	if c.closed || e.hasData {
		// a fetch or SetData beat us; keep the fresher state
		c.mu.Unlock()
		return
	}
	e.data = v
	e.hasData = true
	e.err = nil
	e.status = StatusSuccess
	e.updatedAt = at
	e.dataVersion++
	e.version++
	c.armStaleTimerLocked(e)
	notif := c.notifyLocked(e)
	c.mu.Unlock()

	runAll(notif)
	c.log.Debug("entry hydrated from store", Fields{"key": key, "age": c.now().Sub(at).String()})
}

func (c *Client) rejectRecord(ctx context.Context, key, reason string) {
	c.hooks.HydrateRejected(key, reason)
	if err := c.store.Del(ctx, key); err != nil {
		c.hooks.PersistError(key, "del", err)
	}
	c.log.Debug("persisted record rejected", Fields{"key": key, "reason": reason})
}
