// Package server accepts debugger connections.
//
// A Server listens on one TCP port. Any request carrying a WebSocket upgrade is
// accepted on whatever path it names; the socket is wrapped in a transport.WebSocket
// and then a cdp.Connection, and OnConnection listeners receive the pair of
// Connection and originating request. Every other request gets the discovery document
// that debugger clients fetch before connecting:
//
//	{"webSocketDebuggerUrl":"ws://127.0.0.1:9222/ws"}
//
// # Lifecycle
//
//	srv := server.New(&server.ServerConfig{Port: 9222})
//	srv.OnConnection(func(ev *server.ConnectionEvent) { ... })
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Dispose()
//
// Run combines Start with a blocking wait that ends on SIGINT, SIGTERM or context
// cancellation, then disposes the server. Dispose stops accepting, closes every
// accepted Connection and is safe to call more than once.
package server
