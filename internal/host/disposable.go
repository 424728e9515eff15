package host

import (
	"errors"
	"sync"
)

// Disposable releases something registered with the host.
type Disposable interface {
	Dispose() error
}

// DisposableFunc adapts a function to Disposable.
type DisposableFunc func() error

func (f DisposableFunc) Dispose() error {
	if f == nil {
		return nil
	}
	return f()
}

// Subscriptions collects disposables and releases them in reverse order.
type Subscriptions struct {
	mu    sync.Mutex
	items []Disposable
}

// Push adds disposables. Nil entries are skipped.
func (s *Subscriptions) Push(items ...Disposable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range items {
		if d != nil {
			s.items = append(s.items, d)
		}
	}
}

// Len returns the number of live subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Dispose releases everything pushed so far, newest first, and joins the errors.
func (s *Subscriptions) Dispose() error {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
