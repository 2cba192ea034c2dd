package future

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
)

// ErrAlreadySettled is returned when a Kit is resolved or rejected twice.
var ErrAlreadySettled = errors.New("future: already settled")

// Future is a value of type T that becomes available later.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Kit settles its Future.
type Kit[T any] struct {
	f *Future[T]
}

// New returns an unsettled Future and its Kit.
func New[T any]() (*Future[T], *Kit[T]) {
	f := &Future[T]{done: make(chan struct{})}

	return f, &Kit[T]{f: f}
}

// Resolved returns a Future already holding value.
func Resolved[T any](value T) *Future[T] {
	f, k := New[T]()
	_ = k.Resolve(value)

	return f
}

// Rejected returns a Future already holding err.
func Rejected[T any](err error) *Future[T] {
	f, k := New[T]()
	_ = k.Reject(err)

	return f
}

func (k *Kit[T]) settle(value T, err error) error {
	settled := false

	k.f.once.Do(func() {
		k.f.value, k.f.err = value, err
		close(k.f.done)
		settled = true
	})

	if !settled {
		return ErrAlreadySettled
	}

	return nil
}

// Resolve settles the future with value.
func (k *Kit[T]) Resolve(value T) error {
	return k.settle(value, nil)
}

// Reject settles the future with err.
func (k *Kit[T]) Reject(err error) error {
	if err == nil {
		err = errors.New("future: rejected without reason")
	}

	var zero T

	return k.settle(zero, err)
}

// Settle resolves with value when err is nil and rejects otherwise.
func (k *Kit[T]) Settle(value T, err error) error {
	if err != nil {
		return k.Reject(err)
	}

	return k.Resolve(value)
}

// Future returns the future settled by k.
func (k *Kit[T]) Future() *Future[T] {
	return k.f
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T

		return zero, fmt.Errorf("await future: %w", ctx.Err())
	}
}

// Peek returns the settled outcome without blocking; ok is false while pending.
func (f *Future[T]) Peek() (value T, ok bool, err error) {
	select {
	case <-f.done:
		return f.value, true, f.err
	default:
		var zero T

		return zero, false, nil
	}
}

// Go runs fn in a recovered goroutine and returns a future of its result.
// A panic in fn rejects the future.
func Go[T any](ctx context.Context, logger log.Logger, name string, fn func(context.Context) (T, error)) *Future[T] {
	f, k := New[T]()

	runtime.SafeGoWithContextAndComponent(ctx, logger, "future", name, runtime.KeepRunning, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				runtime.HandlePanicValue(ctx, logger, r, "future", name)
				_ = k.Reject(fmt.Errorf("future %s panicked: %v", name, r))
			}
		}()

		_ = k.Settle(fn(ctx))
	})

	return f
}

// Then returns a future of fn applied to f's outcome. fn runs once f settles,
// on its own goroutine, and sees the value and error of f.
func Then[T, U any](ctx context.Context, logger log.Logger, f *Future[T], fn func(context.Context, T, error) (U, error)) *Future[U] {
	return Go(ctx, logger, "then", func(ctx context.Context) (U, error) {
		<-f.done

		return fn(ctx, f.value, f.err)
	})
}

// All waits for every future and returns their values in order, or the first error.
func All[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	out := make([]T, len(futures))

	for i, f := range futures {
		v, err := f.Await(ctx)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}
