// Package cdp is the correlation engine of a JSON debugging protocol in the style of
// the Chrome DevTools Protocol.
//
// A Connection wraps a transport.Transport. Outbound calls get ids from a counter that
// starts at zero and are parked in a pending table until a reply with the same id
// arrives:
//
//	conn := cdp.NewConnection(ws)
//	var out struct{ Result json.RawMessage }
//	err := conn.Call(ctx, "Runtime.evaluate", map[string]any{"expression": "1+1"}, &out)
//
// Inbound messages without an id are commands and go to OnCommand listeners and to
// per-method subscribers registered with On, Domain(...).On or Subscribe. Every
// message with an id goes to OnReply listeners, whether or not it matched a call.
//
// Pause and Unpause hold inbound dispatch back while an owner wires listeners, without
// losing or reordering anything.
package cdp
