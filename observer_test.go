package requery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOnChangeDeliversSuccess(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	q, err := NewQuery(c, "notify", func(context.Context, string) (user, error) {
		return user{Name: "Ada"}, nil
	}, QueryOptions[string, user]{StaleTime: Forever})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	var mu sync.Mutex
	var results []Result[user]
	obs, err := q.Observe(ctx, "k", ObserveOptions[user]{
		OnChange: func(r Result[user]) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()

	eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) > 0 && results[len(results)-1].Status == StatusSuccess
	}, "OnChange should deliver the success state")

	mu.Lock()
	last := results[len(results)-1]
	mu.Unlock()
	if !last.HasData || last.Data.Name != "Ada" {
		t.Fatalf("unexpected final result: %+v", last)
	}
}

func TestNotifyDataOnlySkipsStatusChurn(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	q, err := NewQuery(c, "churn", func(context.Context, string) (int, error) {
		return 1, nil
	}, QueryOptions[string, int]{StaleTime: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	// subscribe both before any fetch runs so notification counts are
	// deterministic
	var all, dataOnly atomic.Int32
	obsAll, err := q.Observe(ctx, "k", ObserveOptions[int]{
		Disabled: true,
		OnChange: func(Result[int]) { all.Add(1) },
	})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obsAll.Unsubscribe()

	obsData, err := q.Observe(ctx, "k", ObserveOptions[int]{
		Disabled:       true,
		NotifyDataOnly: true,
		OnChange:       func(Result[int]) { dataOnly.Add(1) },
	})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obsData.Unsubscribe()

	if err := obsAll.Refetch(ctx, RefetchOptions{ThrowOnError: true}); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	// let the stale timer fire: a version-only change
	time.Sleep(120 * time.Millisecond)

	if n := dataOnly.Load(); n != 1 {
		t.Fatalf("data-only observer should see exactly the success change, got %d", n)
	}
	if n := all.Load(); n < 2 {
		t.Fatalf("unfiltered observer should also see the staleness flip, got %d", n)
	}
}

func TestRefetchForceAndThrow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var failing atomic.Bool
	var calls atomic.Int32
	q, err := NewQuery(c, "force", func(context.Context, string) (int, error) {
		calls.Add(1)
		if failing.Load() {
			return 0, errors.New("down")
		}
		return 10, nil
	}, QueryOptions[string, int]{StaleTime: Forever, Retry: NoRetry, RetryDelay: noDelay})
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

	// fresh data: a plain refetch is a no-op
	if err := obs.Refetch(ctx, RefetchOptions{}); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("non-forced refetch of fresh data must not fetch, got %d", n)
	}

	// forced refetch failure: swallowed by default
	failing.Store(true)
	if err := obs.Refetch(ctx, RefetchOptions{Force: true}); err != nil {
		t.Fatalf("swallowed refetch returned error: %v", err)
	}
	settle()

	// forced refetch failure with ThrowOnError: surfaced, previous data kept
	if err := obs.Refetch(ctx, RefetchOptions{Force: true, ThrowOnError: true}); err == nil {
		t.Fatalf("ThrowOnError refetch should return the failure")
	}
	snap := obs.Snapshot()
	if !snap.HasData || snap.Data != 10 {
		t.Fatalf("failed refetch must keep previous data: %+v", snap)
	}
	if snap.Status != StatusError {
		t.Fatalf("entry should be in error state, got %s", snap.Status)
	}
}

func TestDisabledObserverDoesNotFetch(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	var calls atomic.Int32
	q, err := NewQuery(c, "off", func(context.Context, string) (int, error) {
		calls.Add(1)
		return 1, nil
	}, QueryOptions[string, int]{})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{Disabled: true})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()

	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("disabled observer must not fetch on mount, got %d", n)
	}

	// an explicit refetch still works
	if err := obs.Refetch(ctx, RefetchOptions{}); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("explicit refetch should run, got %d", n)
	}
}

func TestUnsubscribeIdempotentAndWakesWaiters(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, nil)

	q, err := NewQuery(c, "waiters", func(context.Context, string) (int, error) {
		return 1, nil
	}, QueryOptions[string, int]{})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(ctx, "k", ObserveOptions[int]{Disabled: true})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := obs.Wait(ctx)
		done <- err
	}()
	time.Sleep(30 * time.Millisecond)

	obs.Unsubscribe()
	obs.Unsubscribe() // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, ErrUnsubscribed) {
			t.Fatalf("Wait after unsubscribe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not wake on unsubscribe")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	c := newTestClient(t, nil)

	q, err := NewQuery(c, "ctx", func(context.Context, string) (int, error) {
		return 1, nil
	}, QueryOptions[string, int]{})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}

	obs, err := q.Observe(context.Background(), "k", ObserveOptions[int]{Disabled: true})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	defer obs.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := obs.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait should fail with the context error, got %v", err)
	}
}
