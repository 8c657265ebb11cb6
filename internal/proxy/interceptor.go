package proxy

import "github.com/vango-dev/cdpproxy/pkg/cdp"

// Direction tells which way a relayed message is travelling.
type Direction string

const (
	// ToTarget is traffic from the debugger client to the debug target.
	ToTarget Direction = "to_target"

	// ToDebugger is traffic from the debug target to the debugger client.
	ToDebugger Direction = "to_debugger"
)

// Interceptor sees every relayed message before it is forwarded. It returns the
// message to forward, or nil to drop it. An interceptor that changes a message must
// clear msg.Raw, otherwise the original frame is forwarded.
type Interceptor func(s *Session, dir Direction, msg *cdp.Message) *cdp.Message

// ComposeInterceptors chains interceptors left to right. The chain stops at the first
// interceptor that drops the message.
func ComposeInterceptors(interceptors ...Interceptor) Interceptor {
	return func(s *Session, dir Direction, msg *cdp.Message) *cdp.Message {
		for _, in := range interceptors {
			if in == nil {
				continue
			}
			msg = in(s, dir, msg)
			if msg == nil {
				return nil
			}
		}
		return msg
	}
}

// BlockMethods drops commands of the named methods travelling in dir.
func BlockMethods(dir Direction, methods ...string) Interceptor {
	blocked := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		blocked[m] = struct{}{}
	}
	return func(_ *Session, d Direction, msg *cdp.Message) *cdp.Message {
		if d != dir || msg.Method == "" {
			return msg
		}
		if _, ok := blocked[msg.Method]; ok {
			return nil
		}
		return msg
	}
}
