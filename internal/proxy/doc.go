// Package proxy bridges debugger clients accepted by a server.Server to debug targets.
//
// For every accepted connection the proxy pauses the debugger side, dials the target
// named by the ?browser= query parameter (or the configured default) with retries,
// cross-wires both directions through the interceptor chain, and then releases the
// debugger traffic that arrived meanwhile. When either side ends, the other is closed.
//
//	srv := server.New(nil)
//	p := proxy.New(proxy.Config{DefaultTarget: "ws://127.0.0.1:9222/devtools/browser/..."})
//	p.Attach(srv)
//	srv.Run(ctx)
package proxy
