package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smallnest/chanx"

	"github.com/vango-dev/cdpproxy/pkg/event"
)

var errNotObject = errors.New("frame is not a JSON object")

// WebSocket is a Transport over a text-frame WebSocket: one JSON object per frame.
//
// Inbound delivery starts when the first OnMessage listener is attached, so an owner
// that subscribes right after construction sees every frame. WithManualStart defers
// it until Start instead. Outbound frames go
// through an unbounded FIFO drained by a single writer goroutine.
type WebSocket struct {
	conn   *websocket.Conn
	url    string
	logger *slog.Logger
	opts   options

	outbound     *chanx.UnboundedChan[[]byte]
	cancelQueue  context.CancelFunc
	done         chan struct{}
	finishOnce   sync.Once
	closeOnce    sync.Once
	closeStarted chan struct{}

	// mu guards reading and closing.
	mu      sync.Mutex
	reading bool
	closing bool

	onError   event.Emitter[error]
	onMessage event.Emitter[json.RawMessage]
	onEnd     event.Emitter[struct{}]
}

var _ Transport = (*WebSocket)(nil)

// Dial opens a WebSocket to url. Exactly one of three outcomes occurs: the socket
// opens and a bound transport is returned; the dial fails with an *Error; or ctx is
// cancelled first, in which case any half-open socket is closed and a
// *CancelledError is returned.
func Dial(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  o.handshakeTimeout,
		EnableCompression: false,
	}

	conn, _, err := dialer.DialContext(ctx, url, o.header)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, &CancelledError{Reason: "dial " + url, Cause: ctxErr}
	}
	if err != nil {
		return nil, &Error{Op: "dial", URL: url, Err: err}
	}

	o.logger.Debug("websocket connected", "url", url)
	return newWebSocket(conn, url, o), nil
}

// New binds an already-open socket, typically one accepted by a server.
func New(conn *websocket.Conn, opts ...Option) *WebSocket {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	url := ""
	if addr := conn.RemoteAddr(); addr != nil {
		url = addr.String()
	}
	return newWebSocket(conn, url, o)
}

func newWebSocket(conn *websocket.Conn, url string, o options) *WebSocket {
	conn.SetReadLimit(o.readLimit)

	queueCtx, cancel := context.WithCancel(context.Background())
	t := &WebSocket{
		conn:         conn,
		url:          url,
		logger:       o.logger.With("url", url),
		opts:         o,
		outbound:     chanx.NewUnboundedChan[[]byte](queueCtx, 16),
		cancelQueue:  cancel,
		done:         make(chan struct{}),
		closeStarted: make(chan struct{}),
	}

	go t.writeLoop()
	return t
}

// URL returns the dialed URL, or the remote address for accepted sockets.
func (t *WebSocket) URL() string {
	return t.url
}

// RemoteAddr returns the peer address.
func (t *WebSocket) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Done returns a channel that is closed once the socket is fully closed.
func (t *WebSocket) Done() <-chan struct{} {
	return t.done
}

// OnError implements Transport.
func (t *WebSocket) OnError(fn func(error)) event.Disposer {
	return t.onError.AddListener(fn)
}

// OnMessage implements Transport. Unless WithManualStart was given, the first
// registration starts the read loop.
func (t *WebSocket) OnMessage(fn func(json.RawMessage)) event.Disposer {
	dispose := t.onMessage.AddListener(fn)
	if !t.opts.manualStart {
		t.startReading()
	}
	return dispose
}

// Start begins delivering inbound frames. It is a no-op once reading has started or
// the transport is closing.
func (t *WebSocket) Start() {
	t.startReading()
}

// OnEnd implements Transport.
func (t *WebSocket) OnEnd(fn func()) event.Disposer {
	return t.onEnd.AddListener(func(struct{}) { fn() })
}

// Send implements Transport.
func (t *WebSocket) Send(msg any) {
	data, err := encode(msg)
	if err == nil && len(data) == 0 {
		err = errNotObject
	}
	if err != nil {
		t.onError.Emit(&Error{Op: "write", URL: t.url, Err: err})
		return
	}

	select {
	case <-t.closeStarted:
		t.onError.Emit(&Error{Op: "write", URL: t.url, Err: ErrTransportClosed})
	default:
		select {
		case t.outbound.In <- data:
		case <-t.done:
			t.onError.Emit(&Error{Op: "write", URL: t.url, Err: ErrTransportClosed})
		}
	}
}

func encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case json.RawMessage:
		return m, nil
	case []byte:
		return m, nil
	default:
		return json.Marshal(msg)
	}
}

// Close implements Transport. Frames queued before Close are flushed, then a
// normal-closure frame is sent and Close waits for the peer to acknowledge it. The
// transport ends after the close timeout or when ctx ends, whichever comes first. Close
// may be called from a listener; it then returns once the close timeout has passed.
func (t *WebSocket) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		t.mu.Unlock()
		close(t.closeStarted)

		select {
		case t.outbound.In <- nil:
		case <-t.done:
		}
	})

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		t.finish()
		return ctx.Err()
	}
}

// sendClose runs on the writer goroutine once every queued frame has been written.
func (t *WebSocket) sendClose() {
	t.mu.Lock()
	reading := t.reading
	t.mu.Unlock()

	err := t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	switch {
	case !reading:
		// Nobody is reading, so nobody would see the peer's close frame.
		t.finish()
	case err != nil:
		t.finish()
	default:
		// The read loop may be held by the listener that called Close, so the
		// deadline ends the transport rather than only the socket.
		timer := time.AfterFunc(t.opts.closeTimeout, t.finish)
		go func() {
			<-t.done
			timer.Stop()
		}()
	}
}

func (t *WebSocket) startReading() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reading || t.closing {
		return
	}
	t.reading = true
	go t.readLoop()
}

func (t *WebSocket) readLoop() {
	defer t.finish()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.reportReadError(err)
			return
		}

		if err := validateFrame(data); err != nil {
			t.onError.Emit(newMalformedFrameError(data, err))
			continue
		}

		t.onMessage.Emit(json.RawMessage(data))
	}
}

func (t *WebSocket) reportReadError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if !websocket.IsUnexpectedCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived) {
			t.logger.Debug("websocket closed by peer", "code", closeErr.Code)
			return
		}
	} else {
		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()
		if closing {
			return
		}
	}

	t.logger.Warn("websocket read error", "error", err)
	t.onError.Emit(&Error{Op: "read", URL: t.url, Err: err})
}

func validateFrame(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errNotObject
	}
	var fields map[string]json.RawMessage
	return json.Unmarshal(data, &fields)
}

func (t *WebSocket) writeLoop() {
	for {
		select {
		case data, ok := <-t.outbound.Out:
			if !ok {
				return
			}
			if data == nil {
				t.sendClose()
				return
			}
			t.conn.SetWriteDeadline(time.Now().Add(t.opts.writeTimeout))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Warn("websocket write error", "error", err)
				t.onError.Emit(&Error{Op: "write", URL: t.url, Err: err})
			}

		case <-t.done:
			return
		}
	}
}

// finish releases the socket and fires OnEnd exactly once.
func (t *WebSocket) finish() {
	t.finishOnce.Do(func() {
		t.conn.Close()
		t.cancelQueue()
		close(t.done)
		t.logger.Debug("websocket ended")
		t.onEnd.Emit(struct{}{})
	})
}
