// Package transport carries protocol messages over a message-oriented socket.
//
// Transport is the capability contract a Connection is built on: send a message,
// close and wait for completion, and observe errors, inbound messages and
// end-of-stream. WebSocket implements it over gorilla/websocket with one JSON
// object per text frame.
//
// # Outbound connections
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	t, err := transport.Dial(ctx, "ws://127.0.0.1:9222/devtools/browser/abc")
//	if errors.Is(err, transport.ErrCancelled) {
//	    // cancelled or timed out before the socket opened
//	}
//
// # Inbound connections
//
// A server that has already upgraded a request wraps the socket with New. Nothing is
// read from the socket until the first OnMessage listener is attached.
//
// # Errors
//
// Send never returns an error. Socket failures are *Error values, frames that are not
// JSON objects are *MalformedFrameError values, and both are delivered to OnError
// listeners without stopping the read loop.
package transport
