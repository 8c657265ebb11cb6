// Package middleware provides call middleware and metrics for the proxy.
//
// This package includes:
//   - OpenTelemetry tracing of outbound protocol calls
//   - Prometheus metrics for calls, proxied sessions and relayed traffic
//
// # OpenTelemetry Middleware
//
// Every call issued through a cdp.Connection gets a client span named after the
// method, ending when the reply arrives or the connection closes:
//
//	conn := cdp.NewConnection(t, cdp.WithMiddleware(
//	    middleware.OpenTelemetry(middleware.WithTracerName("my-proxy")),
//	))
//
// # Prometheus Metrics
//
//   - cdpproxy_calls_total: calls by method and status
//   - cdpproxy_call_duration_seconds: issue-to-settle duration
//   - cdpproxy_active_sessions: proxied debugger sessions
//   - cdpproxy_relayed_messages_total: relayed messages by direction and kind
//   - cdpproxy_dial_failures_total: target dials that gave up
//
// Metrics live in a process-wide set created by the first Prometheus or InitMetrics
// call; the Record functions are no-ops until then.
package middleware
