package cdp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/eapache/queue"

	"github.com/vango-dev/cdpproxy/pkg/event"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// Connection correlates outbound calls with inbound replies over one Transport, routes
// inbound commands to observers, and can hold inbound traffic back while its owner
// wires listeners.
//
// Inbound messages are dispatched one at a time, in arrival order, on the transport's
// delivery goroutine (or on the goroutine calling Unpause while the pause buffer
// drains). Listeners run without any Connection lock held and may call back into the
// Connection.
type Connection struct {
	transport transport.Transport
	logger    *slog.Logger

	mu         sync.Mutex
	paused     bool
	draining   bool
	buffer     *queue.Queue // nil unless paused or draining
	pending    map[int64]*Call
	nextID     int64
	closed     bool
	domains    map[string]*Domain
	middleware []CallMiddleware

	closeOnce sync.Once
	closeErr  error

	onCommand event.Emitter[*Message]
	onReply   event.Emitter[*Message]
	onError   event.Emitter[error]
	onEnd     event.Emitter[struct{}]
	methods   event.Bus[*Message]
}

// NewConnection takes ownership of t and starts dispatching its messages.
func NewConnection(t transport.Transport, opts ...Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Connection{
		transport:  t,
		logger:     o.logger,
		pending:    make(map[int64]*Call),
		domains:    make(map[string]*Domain),
		middleware: o.middleware,
	}

	t.OnError(func(err error) { c.onError.Emit(err) })
	t.OnEnd(func() { c.onEnd.Emit(struct{}{}) })
	// Last, since attaching a message listener may start delivery.
	t.OnMessage(c.receive)

	return c
}

// Transport returns the underlying transport.
func (c *Connection) Transport() transport.Transport {
	return c.transport
}

// Pause defers dispatch of inbound messages until Unpause. It is a no-op if the
// connection is already paused.
func (c *Connection) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return
	}
	c.paused = true
	if c.buffer == nil {
		c.buffer = queue.New()
	}
}

// Unpause dispatches every buffered message in arrival order, then resumes live
// dispatch. Messages arriving during the drain are queued behind the buffered ones.
// If a listener pauses the connection again mid-drain, the remaining messages stay
// buffered for the next Unpause. Unpause is a no-op if the connection is not paused.
func (c *Connection) Unpause() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	if c.draining {
		// Re-paused and resumed from a listener; the outer drain carries on.
		c.mu.Unlock()
		return
	}
	c.draining = true

	for {
		if c.paused {
			c.draining = false
			c.mu.Unlock()
			return
		}
		if c.buffer.Length() == 0 {
			c.draining = false
			c.buffer = nil
			c.mu.Unlock()
			return
		}
		raw := c.buffer.Remove().(json.RawMessage)
		c.mu.Unlock()

		c.dispatch(raw)

		c.mu.Lock()
	}
}

// Paused reports whether inbound dispatch is currently deferred.
func (c *Connection) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// receive is the transport's message listener.
func (c *Connection) receive(raw json.RawMessage) {
	c.mu.Lock()
	if c.paused || c.draining {
		c.buffer.Add(raw)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.dispatch(raw)
}

func (c *Connection) dispatch(raw json.RawMessage) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		c.onError.Emit(err)
		return
	}

	if !msg.IsReply() {
		c.onCommand.Emit(msg)
		c.methods.Emit(msg.Method, msg)
		return
	}

	c.onReply.Emit(msg)

	id := *msg.ID
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("reply without pending call", "id", id)
		return
	}

	if msg.Error != nil {
		method := msg.Method
		if method == "" {
			method = call.Method
		}
		call.settle(nil, &ProtocolError{
			Code:      msg.Error.Code,
			Message:   msg.Error.Message,
			Method:    method,
			SessionID: msg.SessionID,
		})
		return
	}
	call.settle(msg.Result, nil)
}

// NextID allocates a correlation id. Ids start at zero and are never reused.
func (c *Connection) NextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// Go issues a call and returns its handle without waiting. The id is allocated and the
// pending entry inserted before the command is sent. If ctx is already done, or the
// connection is closed, the returned call has already failed.
func (c *Connection) Go(ctx context.Context, method string, params any) *Call {
	return c.GoSession(ctx, "", method, params)
}

// GoSession is Go for a call routed to an attached target session. The reply is
// correlated by id alone, like any other.
func (c *Connection) GoSession(ctx context.Context, sessionID, method string, params any) *Call {
	raw, encodeErr := encodeParams(params)

	c.mu.Lock()
	chain := c.middleware
	var call *Call
	switch {
	case c.closed:
		call = newCall(-1, method)
		call.settle(nil, ErrConnectionClosed)
	case encodeErr != nil:
		call = newCall(-1, method)
		call.settle(nil, encodeErr)
	case ctx.Err() != nil:
		call = newCall(-1, method)
		call.settle(nil, &transport.CancelledError{Reason: method, Cause: ctx.Err()})
	default:
		call = newCall(c.nextID, method)
		c.nextID++
		c.pending[call.ID] = call
	}
	c.mu.Unlock()

	if call.ID >= 0 {
		id := call.ID
		c.transport.Send(&Message{ID: &id, Method: method, Params: raw, SessionID: sessionID})
	}

	if len(chain) > 0 {
		go runChain(ctx, chain, call)
	}
	return call
}

// Call issues a call, waits for its reply and decodes the result into result, which
// may be nil to discard it. An error reply is returned as a *ProtocolError.
func (c *Connection) Call(ctx context.Context, method string, params, result any) error {
	return c.Go(ctx, method, params).Decode(ctx, result)
}

// Send writes msg as is, without correlation. It is the relay path.
func (c *Connection) Send(msg *Message) {
	c.transport.Send(msg)
}

// SendRaw writes an already-encoded frame without correlation.
func (c *Connection) SendRaw(raw json.RawMessage) {
	c.transport.Send(raw)
}

// Use appends call middleware; it applies to calls issued afterwards.
func (c *Connection) Use(mw ...CallMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chain := make([]CallMiddleware, 0, len(c.middleware)+len(mw))
	chain = append(chain, c.middleware...)
	c.middleware = append(chain, mw...)
}

// Pending returns the number of calls awaiting a reply.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// OnCommand registers fn for every inbound message without an id.
func (c *Connection) OnCommand(fn func(*Message)) event.Disposer {
	return c.onCommand.AddListener(fn)
}

// OnReply registers fn for every inbound message with an id, matched or not.
func (c *Connection) OnReply(fn func(*Message)) event.Disposer {
	return c.onReply.AddListener(fn)
}

// OnError registers fn for transport errors and undecodable messages.
func (c *Connection) OnError(fn func(error)) event.Disposer {
	return c.onError.AddListener(fn)
}

// OnEnd registers fn for the end of the underlying transport.
func (c *Connection) OnEnd(fn func()) event.Disposer {
	return c.onEnd.AddListener(func(struct{}) { fn() })
}

// On registers fn for inbound commands with the given fully qualified method, such as
// "Target.targetCreated".
func (c *Connection) On(method string, fn func(*Message)) event.Disposer {
	return c.methods.On(method, fn)
}

// Close closes the transport, then fails every pending call with ErrConnectionClosed.
// Calls issued once Close has begun fail immediately. The pending table is cleared
// even when the transport reports an error, which Close returns. Repeated calls
// return the first result.
func (c *Connection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.closeErr = c.transport.Close(ctx)

		c.mu.Lock()
		pending := c.pending
		c.pending = make(map[int64]*Call)
		c.mu.Unlock()

		for _, call := range pending {
			call.settle(nil, ErrConnectionClosed)
		}
		if len(pending) > 0 {
			c.logger.Debug("connection closed with pending calls", "count", len(pending))
		}
	})
	return c.closeErr
}
