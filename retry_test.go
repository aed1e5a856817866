package requery

import (
	"errors"
	"testing"
	"time"
)

func TestRetryCount(t *testing.T) {
	errBoom := errors.New("boom")
	p := RetryCount(3)
	for failures := 1; failures <= 3; failures++ {
		if !p.ShouldRetry(failures, errBoom) {
			t.Fatalf("RetryCount(3) should retry after %d failures", failures)
		}
	}
	if p.ShouldRetry(4, errBoom) {
		t.Fatal("RetryCount(3) should stop after the 4th failure")
	}
	if NoRetry.ShouldRetry(1, errBoom) {
		t.Fatal("NoRetry should never retry")
	}
	if !RetryForever.ShouldRetry(1000, errBoom) {
		t.Fatal("RetryForever should always retry")
	}
}

func TestRetryFuncInspectsError(t *testing.T) {
	errFatal := errors.New("fatal")
	p := RetryFunc(func(failures int, err error) bool {
		return failures < 10 && !errors.Is(err, errFatal)
	})
	if !p.ShouldRetry(1, errors.New("transient")) {
		t.Fatal("transient error should retry")
	}
	if p.ShouldRetry(1, errFatal) {
		t.Fatal("fatal error should not retry")
	}
}

func TestExponentialBackoff(t *testing.T) {
	d := ExponentialBackoff(time.Second, 30*time.Second)
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}
	for i, w := range want {
		if got := d(i + 1); got != w {
			t.Fatalf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}
}

func TestExponentialBackoffLowCap(t *testing.T) {
	d := ExponentialBackoff(time.Second, 500*time.Millisecond)
	if got := d(1); got != 500*time.Millisecond {
		t.Fatalf("base above cap should clamp, got %v", got)
	}
}
