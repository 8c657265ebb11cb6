package cdp

import "context"

// CallInfo describes an outbound call to middleware.
type CallInfo struct {
	ID     int64
	Method string
}

// CallMiddleware wraps the issue-to-settle cycle of every outbound call. next blocks
// until the call settles and returns its error.
type CallMiddleware interface {
	HandleCall(ctx context.Context, info CallInfo, next func() error) error
}

// CallMiddlewareFunc adapts a function to CallMiddleware.
type CallMiddlewareFunc func(ctx context.Context, info CallInfo, next func() error) error

// HandleCall implements CallMiddleware.
func (f CallMiddlewareFunc) HandleCall(ctx context.Context, info CallInfo, next func() error) error {
	return f(ctx, info, next)
}

// runChain runs middleware in registration order, the first being outermost.
func runChain(ctx context.Context, chain []CallMiddleware, call *Call) {
	info := CallInfo{ID: call.ID, Method: call.Method}

	var step func(i int) error
	step = func(i int) error {
		if i == len(chain) {
			<-call.done
			return call.err
		}
		return chain[i].HandleCall(ctx, info, func() error { return step(i + 1) })
	}
	_ = step(0)
}
