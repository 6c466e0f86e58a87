package modules

import (
	"context"
	"sync"
)

// Cell is a memoized asynchronous result slot backing one lifecycle stage.
//
// The first Get starts the computation in its own goroutine; every caller,
// concurrent or later, joins that single run and observes the same result.
// A failed run is cached like a successful one and never retried: callers
// keep seeing the original error for the lifetime of the cell.
type Cell[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewCell creates an unresolved cell.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{done: make(chan struct{})}
}

// Seed resolves the cell to val without running any computation, used when
// reconstructing modules from persisted state. It has no effect on a cell
// that already started computing.
func (c *Cell[T]) Seed(val T) {
	c.once.Do(func() {
		c.val = val
		close(c.done)
	})
}

// Get returns the cell's result, starting fn if this is the first use.
//
// fn receives a context detached from the caller's cancelation: a caller
// that gives up waiting does not abort the computation for everyone else.
// When ctx is canceled the caller gets its context error and the cell stays
// untouched by it.
func (c *Cell[T]) Get(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	c.once.Do(func() {
		computeCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(c.done)
			c.val, c.err = fn(computeCtx)
		}()
	})

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the value of a successfully resolved cell. It never triggers
// the computation and reports false while the cell is unresolved, still
// computing, or failed.
func (c *Cell[T]) Peek() (T, bool) {
	select {
	case <-c.done:
		if c.err != nil {
			var zero T
			return zero, false
		}
		return c.val, true
	default:
		var zero T
		return zero, false
	}
}
