//go:build unit

package backoff

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "attempt zero", base: 10 * time.Millisecond, attempt: 0, want: 10 * time.Millisecond},
		{name: "attempt three", base: 10 * time.Millisecond, attempt: 3, want: 80 * time.Millisecond},
		{name: "negative attempt", base: time.Second, attempt: -4, want: time.Second},
		{name: "zero base", base: 0, attempt: 5, want: 0},
		{name: "overflow saturates", base: time.Hour, attempt: 100, want: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestFullJitter_Bounds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.Equal(t, time.Duration(0), FullJitter(-time.Second))

	for range 100 {
		d := FullJitter(time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Millisecond)
	}
}

func TestFallbackRand_Bounds(t *testing.T) {
	t.Parallel()

	for range 50 {
		v := fallbackRand(10)
		assert.GreaterOrEqual(t, v, int64(0))
		assert.Less(t, v, int64(10))
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepWithContext(context.Background(), 0))
	require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepWithContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry(t *testing.T) {
	t.Parallel()

	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		policy    Policy
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "succeeds first time",
			policy:    Policy{Attempts: 3, Base: time.Microsecond},
			wantCalls: 1,
		},
		{
			name:      "succeeds after retries",
			policy:    Policy{Attempts: 3, Base: time.Microsecond},
			failures:  2,
			failWith:  errTransient,
			wantCalls: 3,
		},
		{
			name:      "exhausts attempts",
			policy:    Policy{Attempts: 2, Base: time.Microsecond},
			failures:  5,
			failWith:  errTransient,
			wantCalls: 2,
			wantErr:   errTransient,
		},
		{
			name: "stops on non-retryable",
			policy: Policy{Attempts: 5, Base: time.Microsecond, Retryable: func(err error) bool {
				return !errors.Is(err, errFatal)
			}},
			failures:  5,
			failWith:  errFatal,
			wantCalls: 1,
			wantErr:   errFatal,
		},
		{
			name:      "zero attempts means one",
			policy:    Policy{},
			failures:  1,
			failWith:  errTransient,
			wantCalls: 1,
			wantErr:   errTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := Retry(context.Background(), tt.policy, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}

				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetry_CanceledContextStopsLoop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	errTransient := errors.New("transient")

	calls := 0
	err := Retry(ctx, Policy{Attempts: 10, Base: time.Hour}, func(context.Context) error {
		calls++
		cancel()

		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestPolicy_DelayCapped(t *testing.T) {
	t.Parallel()

	p := Policy{Base: time.Second, Max: time.Millisecond}
	assert.LessOrEqual(t, p.delay(10), time.Millisecond)
}
