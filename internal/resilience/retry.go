package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy bounds the retries of one network-facing operation.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first try.
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// Delay is the fixed wait before each retry. Default: 1s.
	Delay time.Duration

	// OnRetry is called before each retry wait with the attempt number that
	// just failed and its error.
	OnRetry func(attempt int, err error)
}

// Reloader refreshes the navigation session between attempts so the next
// try starts from a fresh page state.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context) error

// Reload calls f.
func (f ReloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

// Do executes fn up to p.MaxAttempts times. Between attempts it waits
// p.Delay and then reloads through r (a nil r skips the reload). Reload
// failures are logged and do not stop the loop. The first success returns
// immediately; when every attempt fails the result is a
// *RetryExhaustedError naming op. Errors marked Permanent end the loop
// at once and are returned unwrapped.
func Do(ctx context.Context, p Policy, r Reloader, op string, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that produce a value.
func DoVal[T any](ctx context.Context, p Policy, r Reloader, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attempts = attempt
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if pe := asPermanent(err); pe != nil {
			return zero, pe.err
		}
		if ctx.Err() != nil || attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if !sleep(ctx, p.Delay) {
			break
		}
		if r != nil {
			if rerr := r.Reload(ctx); rerr != nil {
				zap.L().Debug("resilience: reload between attempts failed",
					zap.String("operation", op),
					zap.Int("attempt", attempt),
					zap.Error(rerr),
				)
			}
		}
	}

	return zero, &RetryExhaustedError{Op: op, Attempts: attempts, Last: lastErr}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// sleep waits d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
