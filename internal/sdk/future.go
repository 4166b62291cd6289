package sdk

import (
	"context"
	"sync"
)

// Future is a single-shot asynchronous result.
//
// Contract:
//   - It settles at most once: exactly one value or exactly one error.
//   - Later Resolve/Reject calls are ignored (they report false).
//   - There is no built-in timeout. A future the native side never settles
//     stays pending forever; callers bound their own wait with Wait(ctx).
type Future[T any] struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	val     T
	err     error
	cbs     []func(T, error)
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Failed returns a future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

func (f *Future[T]) Resolve(v T) bool {
	var zero error
	return f.settle(v, zero)
}

func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val, f.err = v, err
	cbs := f.cbs
	f.cbs = nil
	close(f.done)
	f.mu.Unlock()

	// Callbacks run outside the lock so they may chain other futures.
	for _, cb := range cbs {
		cb(v, err)
	}
	return true
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Settled reports whether a value or error has been delivered.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Wait blocks until the future settles or ctx is done. Giving up on ctx does
// not settle the future.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run exactly once with the outcome. If the future
// already settled, fn runs synchronously on the calling goroutine; otherwise it
// runs on the goroutine that settles the future.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	if !f.settled {
		f.cbs = append(f.cbs, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Map derives a future whose value is conv(value of src). Errors from src or
// conv settle the derived future with that error.
func Map[T, U any](src *Future[T], conv func(T) (U, error)) *Future[U] {
	out := NewFuture[U]()
	src.OnComplete(func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		u, err := conv(v)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(u)
	})
	return out
}
