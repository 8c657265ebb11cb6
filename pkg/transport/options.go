package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// Default limits for WebSocket transports.
const (
	// DefaultReadLimit is the largest inbound frame accepted (256 MiB).
	DefaultReadLimit int64 = 256 * 1024 * 1024

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the opening handshake of Dial.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultCloseTimeout bounds how long Close waits for the peer's close frame.
	DefaultCloseTimeout = 5 * time.Second

	// closeGracePeriod bounds the close control frame write.
	closeGracePeriod = time.Second
)

type options struct {
	logger           *slog.Logger
	readLimit        int64
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	header           http.Header
	closeTimeout     time.Duration
	manualStart      bool
}

func defaultOptions() options {
	return options{
		logger:           slog.Default().With("component", "transport"),
		readLimit:        DefaultReadLimit,
		writeTimeout:     DefaultWriteTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		closeTimeout:     DefaultCloseTimeout,
	}
}

// Option configures a WebSocket transport.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReadLimit sets the maximum inbound frame size in bytes.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// WithWriteTimeout sets the deadline applied to each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithHandshakeTimeout sets the opening handshake timeout used by Dial.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithCloseTimeout sets how long Close waits for the peer to acknowledge closure
// before ending the transport anyway.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithHeader sets extra request headers sent by Dial.
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// WithManualStart defers delivery until Start is called, instead of starting it when
// the first message listener is attached.
func WithManualStart() Option {
	return func(o *options) {
		o.manualStart = true
	}
}
