// Package cdpapi holds small hand-written typed facades over cdp.Connection for the
// handful of methods and events this module uses itself. Anything not covered here is
// reachable through cdp.Connection.Domain.
package cdpapi
