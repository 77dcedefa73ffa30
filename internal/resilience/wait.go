package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrWaitTimeout is returned by WaitUntil when the condition never held.
var ErrWaitTimeout = eris.New("resilience: condition not met before timeout")

// WaitUntil polls cond every interval until it reports true, timeout
// elapses, or ctx is done. A cond error counts as "not yet"; the last one
// is attached to the timeout error.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if !time.Now().Before(deadline) {
			if lastErr != nil {
				return eris.Wrapf(ErrWaitTimeout, "after %s: %v", timeout, lastErr)
			}
			return eris.Wrapf(ErrWaitTimeout, "after %s", timeout)
		}
		if !sleep(ctx, min(interval, time.Until(deadline))) {
			return eris.Wrap(ctx.Err(), "resilience: wait cancelled")
		}
	}
}
