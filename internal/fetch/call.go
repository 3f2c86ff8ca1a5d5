package fetch

import (
	"context"
	"fmt"
)

// Status is the tri-state of an asynchronous fetch.
type Status int

const (
	Loading Status = iota
	Failed
	Ready
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Failed:
		return "error"
	case Ready:
		return "data"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as "loading", "error" or "data".
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Call is a fetch running in the background. It starts Loading and
// settles exactly once, into either Ready or Failed.
type Call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go starts Get in a new goroutine and returns immediately.
func Go[T any](ctx context.Context, f *Fetcher, url string, schema *Schema, token string) *Call[T] {
	return Start(func() (T, error) {
		return Get[T](ctx, f, url, schema, token)
	})
}

// Start runs fn in a new goroutine and settles the call with its result.
func Start[T any](fn func() (T, error)) *Call[T] {
	c := &Call[T]{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.value, c.err = fn()
	}()
	return c
}

// Status reports the current state without blocking.
func (c *Call[T]) Status() Status {
	select {
	case <-c.done:
		if c.err != nil {
			return Failed
		}
		return Ready
	default:
		return Loading
	}
}

// Done is closed once the call has settled.
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles or ctx is done. A cancelled ctx
// returns ctx.Err() but leaves the call running.
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.value, c.err
	default:
	}
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result is a point-in-time view of a Call, shaped for JSON responses.
type Result[T any] struct {
	Status Status `json:"status"`
	Data   *T     `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	err    error
}

// Err is the failure behind a Failed result.
func (r Result[T]) Err() error {
	return r.err
}

// Result snapshots the call.
func (c *Call[T]) Result() Result[T] {
	switch c.Status() {
	case Ready:
		v := c.value
		return Result[T]{Status: Ready, Data: &v}
	case Failed:
		return Result[T]{Status: Failed, Error: c.err.Error(), err: c.err}
	default:
		return Result[T]{Status: Loading}
	}
}
