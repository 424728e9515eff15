package host

import (
	"context"
	"sync"
)

// Future is a value that becomes available once, either resolved or rejected.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future with v. Later calls are ignored.
func (f *Future[T]) Resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

// Reject settles the future with err. Later calls are ignored.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
