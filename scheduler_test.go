package requery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaleTimerMarksWithoutFetching(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "stale", func(context.Context, string) (int, error) {
		calls.Add(1)
		return 1, nil
	}, QueryOptions[string, int]{StaleTime: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()
	if _, err := obs.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if obs.Snapshot().IsStale {
		t.Fatalf("data should be fresh right after fetch")
	}

	eventually(t, 2*time.Second, func() bool { return obs.Snapshot().IsStale },
		"stale timer should flip the entry")
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("staleness alone must not fetch, got %d calls", n)
	}
}

func TestRefetchIntervalAndBackgroundPause(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "tick", func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions[string, int]{StaleTime: Forever})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{RefetchInterval: 25 * time.Millisecond})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()

	eventually(t, 3*time.Second, func() bool { return calls.Load() >= 3 },
		"interval should refetch repeatedly")

	// backgrounded: the interval keeps ticking but stops fetching
	c.SetBackgrounded(true)
	time.Sleep(60 * time.Millisecond) // let an in-flight tick drain
	n := calls.Load()
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != n {
		t.Fatalf("interval must pause in background: %d -> %d", n, got)
	}

	// foreground again: ticking resumes
	c.SetBackgrounded(false)
	eventually(t, 3*time.Second, func() bool { return calls.Load() > n },
		"interval should resume in foreground")
}

func TestRefetchIntervalInBackgroundOptIn(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)
	c.SetBackgrounded(true)

	var calls atomic.Int32
	q, err := NewQuery(c, "bg", func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions[string, int]{StaleTime: Forever})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{
		RefetchInterval:             25 * time.Millisecond,
		RefetchIntervalInBackground: true,
	})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()

	eventually(t, 3*time.Second, func() bool { return calls.Load() >= 3 },
		"opted-in interval should keep fetching while backgrounded")
}

func TestFocusRefetchesStaleEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "focus", func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions[string, int]{}) // default StaleTime 0: always stale
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()
	if _, err := obs.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	settle()

	c.NotifyFocus()
	eventually(t, 2*time.Second, func() bool { return calls.Load() == 2 },
		"focus should refetch the stale entry")
}

func TestFocusRespectsDisableFlag(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "nofocus", func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions[string, int]{})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{DisableRefetchOnFocus: true})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()
	if _, err := obs.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	settle()

	c.NotifyFocus()
	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("focus refetch should be disabled, got %d calls", n)
	}
}

func TestReconnectRefetchesStaleEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "reconnect", func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions[string, int]{})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()
	if _, err := obs.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	settle()

	c.NotifyReconnect()
	eventually(t, 2*time.Second, func() bool { return calls.Load() == 2 },
		"reconnect should refetch the stale entry")
}

func TestFocusSkipsFreshEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "fresh", func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}, QueryOptions[string, int]{StaleTime: Forever})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()
	if _, err := obs.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	settle()

	c.NotifyFocus()
	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("focus must not refetch fresh data, got %d calls", n)
	}
}
