package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
)

// ErrFinished is returned by Updater methods once the stream has ended.
var ErrFinished = errors.New("notifier: stream already finished")

// Update is one snapshot of the stream. Count increases by one per snapshot,
// starting at 1; Done marks the final snapshot.
type Update[T any] struct {
	Value T
	Count uint64
	Done  bool
}

type state[T any] struct {
	mu      sync.Mutex
	current Update[T]
	err     error
	changed chan struct{}
}

// Updater is the producer side of a kit.
type Updater[T any] struct {
	s *state[T]
}

// Notifier is the observer side of a kit.
type Notifier[T any] struct {
	s      *state[T]
	logger log.Logger
}

// NewKit returns a connected Updater and Notifier. When initial is given the
// stream starts with it as update 1.
func NewKit[T any](logger log.Logger, initial ...T) (*Updater[T], *Notifier[T]) {
	s := &state[T]{changed: make(chan struct{})}

	if len(initial) > 0 {
		s.current = Update[T]{Value: initial[0], Count: 1}
	}

	return &Updater[T]{s: s}, &Notifier[T]{s: s, logger: log.OrNop(logger)}
}

func (s *state[T]) publish(value T, done bool, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Done || s.err != nil {
		return ErrFinished
	}

	if err != nil {
		s.err = err
	} else {
		s.current = Update[T]{Value: value, Count: s.current.Count + 1, Done: done}
	}

	close(s.changed)
	s.changed = make(chan struct{})

	return nil
}

// Update publishes a new snapshot.
func (u *Updater[T]) Update(value T) error {
	return u.s.publish(value, false, nil)
}

// Finish publishes the final snapshot.
func (u *Updater[T]) Finish(value T) error {
	return u.s.publish(value, true, nil)
}

// Fail ends the stream with err.
func (u *Updater[T]) Fail(err error) error {
	if err == nil {
		err = errors.New("notifier: failed without reason")
	}

	var zero T

	return u.s.publish(zero, false, err)
}

// GetUpdateSince returns the first snapshot whose Count differs from count,
// blocking until one is published, the stream fails, or ctx is done. Pass 0
// to get the current snapshot as soon as one exists.
func (n *Notifier[T]) GetUpdateSince(ctx context.Context, count uint64) (Update[T], error) {
	for {
		n.s.mu.Lock()
		current, err, changed := n.s.current, n.s.err, n.s.changed
		n.s.mu.Unlock()

		if err != nil {
			return Update[T]{}, err
		}

		if current.Count != count && current.Count > 0 {
			return current, nil
		}

		if current.Done {
			return current, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Update[T]{}, ctx.Err()
		}
	}
}

// Latest returns the current snapshot without blocking.
func (n *Notifier[T]) Latest() (Update[T], error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()

	return n.s.current, n.s.err
}

// Subscribe streams every snapshot published from now on, starting with the
// current one. The channel is closed after the final snapshot, when the
// stream fails, or when ctx is done. Snapshots published faster than the
// reader consumes them are coalesced to the latest.
func (n *Notifier[T]) Subscribe(ctx context.Context) <-chan Update[T] {
	out := make(chan Update[T])

	runtime.SafeGoWithContextAndComponent(ctx, n.logger, "notifier", "subscribe", runtime.KeepRunning,
		func(ctx context.Context) {
			defer close(out)

			var seen uint64

			for {
				update, err := n.GetUpdateSince(ctx, seen)
				if err != nil {
					return
				}

				select {
				case out <- update:
				case <-ctx.Done():
					return
				}

				if update.Done {
					return
				}

				seen = update.Count
			}
		})

	return out
}
