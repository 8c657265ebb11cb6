package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for server lifecycle conditions.
var (
	// ErrServerClosed is returned when starting a server that has been disposed.
	ErrServerClosed = errors.New("server: closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("server: already started")

	// ErrNotStarted is returned when an operation needs a listening server.
	ErrNotStarted = errors.New("server: not started")
)

// ListenError wraps a failure to bind the listening socket.
type ListenError struct {
	Address string
	Err     error
}

// Error returns the error message with the address.
func (e *ListenError) Error() string {
	return fmt.Sprintf("server: listen %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ListenError) Unwrap() error {
	return e.Err
}
