// Package sloghooks is a ready-made requery.Hooks that logs events via
// log/slog with optional sampling for the chatty ones.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/requery"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchRetryEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix so argument
	// digests never leak raw identifiers into logs.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	retryCtr atomic.Uint64
}

var _ requery.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func (h *Hooks) FetchRetried(key string, failures int, err error) {
	n := h.retryCtr.Add(1)
	if every := h.opts.FetchRetryEvery; every > 1 && n%every != 0 {
		return
	}
	h.l.Warn("requery fetch retried",
		slog.String("key", h.redact(key)),
		slog.Int("failures", failures),
		slog.Any("err", err),
	)
}

func (h *Hooks) FetchFailed(key string, attempts int, err error) {
	h.l.Error("requery fetch failed",
		slog.String("key", h.redact(key)),
		slog.Int("attempts", attempts),
		slog.Any("err", err),
	)
}

func (h *Hooks) EntryEvicted(key string) {
	h.l.Debug("requery entry evicted", slog.String("key", h.redact(key)))
}

func (h *Hooks) PersistError(key, op string, err error) {
	h.l.Warn("requery persist error",
		slog.String("key", h.redact(key)),
		slog.String("op", op),
		slog.Any("err", err),
	)
}

func (h *Hooks) HydrateRejected(key, reason string) {
	h.l.Warn("requery hydrate rejected",
		slog.String("key", h.redact(key)),
		slog.String("reason", reason),
	)
}
