package requery

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("requery: client closed")

// ErrNoResolver is returned when a fetch is requested for an entry that was
// created by SetData alone and never bound to a query.
var ErrNoResolver = errors.New("requery: entry has no resolver")

// ErrUnsubscribed is returned by Wait on an observer that was torn down.
var ErrUnsubscribed = errors.New("requery: observer unsubscribed")

// DuplicateQueryError reports a second query definition reusing a name.
type DuplicateQueryError struct {
	Name string
}

func (e *DuplicateQueryError) Error() string {
	return fmt.Sprintf("requery: query %q is already defined", e.Name)
}

// FetchError wraps the terminal resolver error after retries are exhausted.
type FetchError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
