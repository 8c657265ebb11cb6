package transport

import (
	"context"
	"encoding/json"

	"github.com/vango-dev/cdpproxy/pkg/event"
)

// Transport is the capability set a Connection needs from the wire.
//
// Implementations are interchangeable: anything that can send a message, close and
// report errors, inbound messages and end-of-stream can carry a protocol session.
type Transport interface {
	// Send queues msg for delivery. It never blocks on the network and never returns
	// an error; failures are reported through OnError.
	Send(msg any)

	// Close shuts the transport down and blocks until the underlying channel has
	// confirmed closure or ctx is done. Calling Close again waits for the same
	// completion.
	Close(ctx context.Context) error

	// OnError registers a listener for transport failures.
	OnError(fn func(error)) event.Disposer

	// OnMessage registers a listener for inbound messages. Each message is a single
	// JSON object.
	OnMessage(fn func(json.RawMessage)) event.Disposer

	// OnEnd registers a listener that fires once when the transport has closed.
	OnEnd(fn func()) event.Disposer
}
