package cdp

import (
	"errors"
	"fmt"

	"github.com/vango-dev/cdpproxy/pkg/transport"
)

var (
	// ErrCancelled is matched by every cancellation, including ErrConnectionClosed.
	ErrCancelled = transport.ErrCancelled

	// ErrConnectionClosed fails calls that were pending at Close, or issued after it.
	ErrConnectionClosed error = transport.Cancelled("cdp connection closed")

	// ErrNoResult is returned when a success reply carries no result to decode.
	ErrNoResult = errors.New("cdp: reply has no result")
)

// ProtocolError is an error reply matched to a pending call.
type ProtocolError struct {
	Code      int
	Message   string
	Method    string
	SessionID string
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("cdp: %s (%d)", e.Message, e.Code)
	}
	return fmt.Sprintf("cdp: %s: %s (%d)", e.Method, e.Message, e.Code)
}

// IsProtocolError reports whether err carries a protocol error, and returns it.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// DecodeError reports an inbound frame that is JSON but not a protocol message.
type DecodeError struct {
	Data string
	Err  error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("cdp: decode message %q: %v", e.Data, e.Err)
}

// Unwrap returns the parse error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
