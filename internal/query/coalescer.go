package query

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest tracks a single upstream fetch that multiple callers may wait for.
type inFlightRequest[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// coalescer shares one fetch among concurrent callers for the same key.
type coalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// Do runs fn for key unless a fetch for key is already in flight, in which case it waits
// for that one. shared reports whether the caller joined an existing fetch.
//
// fn runs in its own goroutine on a context detached from ctx and bounded by the
// coalescer timeout, so one caller giving up does not fail the others.
func (c *coalescer[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (result T, shared bool, err error) {
	c.mu.Lock()
	req, exists := c.inFlight[key]
	if !exists {
		req = &inFlightRequest[T]{done: make(chan struct{})}
		c.inFlight[key] = req
	}
	c.mu.Unlock()

	if !exists {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		go func() {
			defer cancel()
			req.result, req.err = fn(fetchCtx)

			c.mu.Lock()
			delete(c.inFlight, key)
			c.mu.Unlock()
			close(req.done)
		}()
	}

	select {
	case <-req.done:
		return req.result, exists, req.err
	case <-ctx.Done():
		var zero T
		return zero, exists, ctx.Err()
	}
}

// Pending reports whether a fetch for key is in flight.
func (c *coalescer[T]) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[key]
	return ok
}
