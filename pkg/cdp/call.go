package cdp

import (
	"context"
	"encoding/json"
	"sync"
)

// Call is an outbound call awaiting its reply. It settles exactly once, either with
// the reply's result or with an error.
type Call struct {
	ID     int64
	Method string

	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

func newCall(id int64, method string) *Call {
	return &Call{ID: id, Method: method, done: make(chan struct{})}
}

// settle records the outcome. Later settlements are ignored; it reports whether this
// one took effect.
func (c *Call) settle(result json.RawMessage, err error) bool {
	settled := false
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
		settled = true
	})
	return settled
}

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (c *Call) Result() (json.RawMessage, error) {
	return c.result, c.err
}

// Wait blocks until the call settles or ctx ends. Giving up on ctx leaves the call
// outstanding on its Connection; it still settles on reply or Close.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the call and unmarshals its result into v.
func (c *Call) Decode(ctx context.Context, v any) error {
	result, err := c.Wait(ctx)
	if err != nil {
		return err
	}
	return decodeResult(result, v)
}

func decodeResult(result json.RawMessage, v any) error {
	if v == nil {
		return nil
	}
	if len(result) == 0 {
		return ErrNoResult
	}
	return json.Unmarshal(result, v)
}
