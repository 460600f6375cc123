package migrators

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	stormpath "github.com/stormpath/stormpath-migrate"
)

// RetryPolicy decides how long a failing API call is retried. Only transient
// errors (see stormpath.IsTransient) are retried; permanent errors are handed
// back on the first attempt. A zero MaxAttempts and MaxDuration retry forever.
type RetryPolicy struct {
	MaxAttempts int
	MaxDuration time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MinDelay: 500 * time.Millisecond,
	MaxDelay: 30 * time.Second,
}

// RetryError is returned once a policy gives up on a transient error.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %s", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, fails permanently, the policy is exhausted
// or ctx is done. notify, if not nil, is told about every failed attempt that
// will be retried.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, notify func(err error, attempt int, wait time.Duration)) error {
	b := &backoff.Backoff{
		Min:    p.MinDelay,
		Max:    p.MaxDelay,
		Jitter: true,
	}
	start := time.Now()
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !stormpath.IsTransient(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return &RetryError{Attempts: attempt, Err: err}
		}
		if p.MaxDuration > 0 && time.Since(start) >= p.MaxDuration {
			return &RetryError{Attempts: attempt, Err: err}
		}
		wait := b.Duration()
		if notify != nil {
			notify(err, attempt, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
