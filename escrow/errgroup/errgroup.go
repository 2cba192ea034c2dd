package errgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
)

// ErrPanicRecovered is returned by Wait when a goroutine in the group panicked.
var ErrPanicRecovered = errors.New("errgroup: panic recovered")

// Group runs goroutines sharing a context. The first error cancels the
// context and is returned by Wait; later errors are discarded.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     chan struct{}
	errOnce sync.Once
	err     error
	logger  log.Logger
}

// WithContext returns a new Group and its derived context, canceled on the
// first error or when Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	return &Group{ctx: ctx, cancel: cancel}, ctx
}

// SetLogger sets the logger used to report recovered panics.
func (grp *Group) SetLogger(logger log.Logger) {
	if grp == nil {
		return
	}

	grp.logger = logger
}

// SetLimit bounds the number of goroutines running at once. n <= 0 removes
// the bound. It must be called before the first Go.
func (grp *Group) SetLimit(n int) {
	if n <= 0 {
		grp.sem = nil

		return
	}

	grp.sem = make(chan struct{}, n)
}

func (grp *Group) effectiveCtx() context.Context {
	if grp.ctx != nil {
		return grp.ctx
	}

	return context.Background()
}

// Go starts fn in a new goroutine, blocking while the group is at its limit.
func (grp *Group) Go(fn func() error) {
	if grp.sem != nil {
		grp.sem <- struct{}{}
	}

	grp.wg.Add(1)

	go func() {
		defer grp.wg.Done()
		defer func() {
			if grp.sem != nil {
				<-grp.sem
			}
		}()
		defer func() {
			if recovered := recover(); recovered != nil {
				runtime.HandlePanicValue(grp.effectiveCtx(), grp.logger, recovered, "errgroup", "group.Go")
				grp.setErr(fmt.Errorf("%w: %v", ErrPanicRecovered, recovered))
			}
		}()

		if err := fn(); err != nil {
			grp.setErr(err)
		}
	}()
}

func (grp *Group) setErr(err error) {
	grp.errOnce.Do(func() {
		grp.err = err
		if grp.cancel != nil {
			grp.cancel()
		}
	})
}

// Wait blocks until every goroutine returned, then returns the first error.
func (grp *Group) Wait() error {
	grp.wg.Wait()

	if grp.cancel != nil {
		grp.cancel()
	}

	return grp.err
}
