package requery

import (
	"math"
	"time"
)

// Forever disables a time-based policy. StaleTime == Forever means data
// never goes stale on its own; CacheTime == Forever means unused entries
// are never garbage collected.
const Forever time.Duration = math.MaxInt64

const (
	defaultCacheTime = 5 * time.Minute
	defaultRetries   = 3
	backoffBase      = time.Second
	backoffCap       = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
