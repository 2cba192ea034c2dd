package backoff

import (
	"context"
	"time"
)

// Policy describes a bounded retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values below 1 mean 1.
	Attempts int
	// Base is the delay unit for exponential backoff.
	Base time.Duration
	// Max caps a single delay. Zero means uncapped.
	Max time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

func (p Policy) delay(attempt int) time.Duration {
	d := ExponentialWithJitter(p.Base, attempt)
	if p.Max > 0 && d > p.Max {
		return p.Max
	}

	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts are spent, or ctx is done. It returns the last error from fn.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error

	for attempt := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		if sleepErr := SleepWithContext(ctx, p.delay(attempt)); sleepErr != nil {
			return err
		}
	}

	return err
}
