// Package asynchook decouples hook implementations from requery's fetch
// and eviction paths. Events are queued and delivered by worker
// goroutines; when the queue is full events are dropped rather than
// blocking the cache.
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/requery"
)

type Hooks struct {
	inner requery.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ requery.Hooks = (*Hooks)(nil)

func New(inner requery.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) FetchRetried(k string, n int, err error) {
	h.try(func() { h.inner.FetchRetried(k, n, err) })
}
func (h *Hooks) FetchFailed(k string, n int, err error) {
	h.try(func() { h.inner.FetchFailed(k, n, err) })
}
func (h *Hooks) EntryEvicted(k string) { h.try(func() { h.inner.EntryEvicted(k) }) }
func (h *Hooks) PersistError(k, op string, err error) {
	h.try(func() { h.inner.PersistError(k, op, err) })
}
func (h *Hooks) HydrateRejected(k, reason string) {
	h.try(func() { h.inner.HydrateRejected(k, reason) })
}
