package requery

import "time"

// RetryPolicy decides whether a failed fetch attempt is retried. It is
// consulted after each failure with the number of consecutive failures so
// far (1 after the first failed attempt).
type RetryPolicy interface {
	ShouldRetry(failures int, err error) bool
}

// RetryFunc adapts a function to a RetryPolicy.
type RetryFunc func(failures int, err error) bool

func (f RetryFunc) ShouldRetry(failures int, err error) bool { return f(failures, err) }

// RetryCount retries until n retries have been spent: n+1 total attempts.
// RetryCount(0) never retries.
func RetryCount(n int) RetryPolicy {
	return RetryFunc(func(failures int, _ error) bool { return failures <= n })
}

// NoRetry fails on the first error.
var NoRetry = RetryCount(0)

// RetryForever retries without bound. Pair with a bounded context.
var RetryForever = RetryFunc(func(int, error) bool { return true })

// RetryDelayFunc returns the delay before retry attempt n (1-based).
type RetryDelayFunc func(attempt int) time.Duration

// ExponentialBackoff doubles base per attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) RetryDelayFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// DefaultRetryDelay is 1s, 2s, 4s, ... capped at 30s.
var DefaultRetryDelay = ExponentialBackoff(backoffBase, backoffCap)
