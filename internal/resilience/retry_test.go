package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) Reload(_ context.Context) error {
	r.calls++
	return r.err
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	r := &countingReloader{}
	var calls int
	err := Do(context.Background(), Policy{MaxAttempts: 3}, r, "op", func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if r.calls != 0 {
		t.Errorf("expected no reloads, got %d", r.calls)
	}
}

func TestDo_ReloadsExactlyOncePerFailure(t *testing.T) {
	for k := 0; k < 4; k++ {
		r := &countingReloader{}
		var calls int
		err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: time.Millisecond}, r, "open", func(_ context.Context) error {
			calls++
			if calls <= k {
				return errors.New("not ready")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if calls != k+1 {
			t.Errorf("k=%d: expected %d calls, got %d", k, k+1, calls)
		}
		if r.calls != k {
			t.Errorf("k=%d: expected %d reloads, got %d", k, k, r.calls)
		}
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	r := &countingReloader{}
	last := errors.New("always fails")
	var calls int
	err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, r, "search", func(_ context.Context) error {
		calls++
		return last
	})

	var re *RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if re.Attempts != 3 || re.Op != "search" || !errors.Is(err, last) {
		t.Errorf("unexpected exhaustion error: %+v", re)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	// No reload after the final attempt.
	if r.calls != 2 {
		t.Errorf("expected 2 reloads, got %d", r.calls)
	}
}

func TestDo_ReloadErrorDoesNotStopRetries(t *testing.T) {
	r := &countingReloader{err: errors.New("reload failed")}
	var calls int
	err := Do(context.Background(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, r, "op", func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.calls != 2 {
		t.Errorf("expected 2 reloads, got %d", r.calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	inner := errors.New("bad request")
	var calls int
	err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: time.Millisecond}, nil, "op", func(_ context.Context) error {
		calls++
		return Permanent(inner)
	})
	if !errors.Is(err, inner) {
		t.Fatalf("expected inner error, got %v", err)
	}
	var re *RetryExhaustedError
	if errors.As(err, &re) {
		t.Error("permanent failure should not be reported as exhaustion")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, Policy{MaxAttempts: 5, Delay: 50 * time.Millisecond}, nil, "op", func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after cancel, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	p := Policy{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		OnRetry: func(attempt int, _ error) {
			attempts = append(attempts, attempt)
		},
	}

	_ = Do(context.Background(), p, nil, "op", func(_ context.Context) error {
		return errors.New("fail")
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempts [1 2], got %v", attempts)
	}
}

func TestDo_WaitsDelayBetweenAttempts(t *testing.T) {
	start := time.Now()
	_ = Do(context.Background(), Policy{MaxAttempts: 3, Delay: 20 * time.Millisecond}, nil, "op", func(_ context.Context) error {
		return errors.New("fail")
	})
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected at least two delays, elapsed %s", elapsed)
	}
}

func TestDoVal_ReturnsValueOnSuccess(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), Policy{MaxAttempts: 3, Delay: time.Millisecond}, nil, "op", func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("fail")
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Errorf("expected %q, got %q", "hello", val)
	}
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), Policy{MaxAttempts: 2, Delay: time.Millisecond}, nil, "op", func(_ context.Context) (int, error) {
		return 42, errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts 3, got %d", p.MaxAttempts)
	}
}

func TestFromPolicyConfig(t *testing.T) {
	p := FromPolicyConfig(2, 3*time.Second, "portal", "detail")
	if p.MaxAttempts != 2 || p.Delay != 3*time.Second {
		t.Errorf("unexpected policy: %+v", p)
	}
	if p.OnRetry == nil {
		t.Error("expected OnRetry logger")
	}

	p = FromPolicyConfig(0, -1, "portal", "detail")
	if p.MaxAttempts != 3 || p.Delay != time.Second {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestReloaderFunc(t *testing.T) {
	var called bool
	var r Reloader = ReloaderFunc(func(_ context.Context) error {
		called = true
		return nil
	})
	if err := r.Reload(context.Background()); err != nil || !called {
		t.Errorf("ReloaderFunc did not delegate: called=%v err=%v", called, err)
	}
}
