package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is matched (via errors.Is) by every cancellation error.
	ErrCancelled = errors.New("transport: cancelled")

	// ErrTransportClosed is reported when sending on a transport that is closing.
	ErrTransportClosed = errors.New("transport: closed")
)

// CancelledError reports work that was abandoned because of an external cancellation
// or a shutdown.
type CancelledError struct {
	Reason string
	Cause  error
}

// Cancelled returns a CancelledError with the given reason.
func Cancelled(reason string) *CancelledError {
	return &CancelledError{Reason: reason}
}

// Error returns the error message.
func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCancelled.Error(), e.Reason)
}

// Is reports whether target is ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Unwrap returns the cause, typically a context error.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Error is a socket-level failure.
type Error struct {
	Op  string // dial, read, write, close
	URL string
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// maxFrameExcerpt bounds how much of a bad frame is kept for diagnostics.
const maxFrameExcerpt = 256

// MalformedFrameError is reported when an inbound frame is not a JSON object.
type MalformedFrameError struct {
	Excerpt string
	Err     error
}

func newMalformedFrameError(data []byte, err error) *MalformedFrameError {
	excerpt := data
	if len(excerpt) > maxFrameExcerpt {
		excerpt = excerpt[:maxFrameExcerpt]
	}
	return &MalformedFrameError{Excerpt: string(excerpt), Err: err}
}

// Error returns the error message.
func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("transport: malformed frame %q: %v", e.Excerpt, e.Err)
}

// Unwrap returns the parse error.
func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}
