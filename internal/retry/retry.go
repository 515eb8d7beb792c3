// Package retry runs an operation a fixed number of times with a fixed delay
// between attempts.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Default attempt count and delay used for tool listing and tool calls.
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Policy is a fixed-delay retry policy. The delay does not grow between
// attempts.
type Policy struct {
	Attempts int
	Delay    time.Duration

	// OnRetry, if set, is called before each delayed retry with the number of
	// the attempt about to run (2..Attempts) and the error that caused it.
	OnRetry func(attempt int, err error)

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the 3-attempt, 1-second policy.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// CancelledError reports that ctx ended while waiting for the next attempt.
// It matches both the context error and the last attempt's error.
type CancelledError struct {
	Attempts int
	Err      error
	Last     error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled after attempt %d: %v (last error: %v)", e.Attempts, e.Err, e.Last)
}

func (e *CancelledError) Unwrap() []error { return []error{e.Err, e.Last} }

// Do calls fn until it succeeds or the attempts are used up, and returns the
// last error together with the number of attempts made. A cancelled ctx stops
// the retries at the next delay with a *CancelledError.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if attempt == attempts {
			return attempt, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		if serr := sleep(ctx, p.Delay); serr != nil {
			return attempt, &CancelledError{Attempts: attempt, Err: serr, Last: err}
		}
	}
	return attempts, err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
