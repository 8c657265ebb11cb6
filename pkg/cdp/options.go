package cdp

import "log/slog"

type options struct {
	logger     *slog.Logger
	middleware []CallMiddleware
}

func defaultOptions() options {
	return options{
		logger: slog.Default().With("component", "cdp"),
	}
}

// Option configures a Connection.
type Option func(*options)

// WithLogger sets the connection's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMiddleware appends call middleware.
func WithMiddleware(mw ...CallMiddleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, mw...)
	}
}
