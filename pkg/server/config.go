package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// ServerConfig configures the accepting server.
type ServerConfig struct {
	// Host is the address to listen on and to advertise in the discovery document.
	// Default: "127.0.0.1".
	Host string

	// Port to listen on. Zero selects an ephemeral port.
	Port int

	// Path is the socket path advertised by discovery. Upgrades are accepted on any
	// path regardless. Default: "ws".
	Path string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin validates the Origin of upgrade requests.
	// Default: AllowAnyOrigin. Debugger front ends connect from their own origins.
	CheckOrigin func(r *http.Request) bool

	// ShutdownTimeout bounds Dispose.
	// Default: 10s.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10s.
	ReadHeaderTimeout time.Duration

	// MetricsHandler, when set, is served at /metrics.
	MetricsHandler http.Handler

	// TransportOptions apply to every accepted socket.
	TransportOptions []transport.Option

	// ConnectionOptions apply to every accepted Connection.
	ConnectionOptions []cdp.Option

	// Logger. Default: slog.Default() with component=server.
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "127.0.0.1",
		Port:              0,
		Path:              "ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       AllowAnyOrigin,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// applyDefaults fills unset fields from DefaultServerConfig.
func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Path == "" {
		c.Path = defaults.Path
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "server")
	}
}

// Validate checks the configuration for values that cannot work.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Value: c.Port, Reason: "must be between 0 and 65535"}
	}
	if c.ReadBufferSize < 0 {
		return &ConfigError{Field: "ReadBufferSize", Value: c.ReadBufferSize, Reason: "must not be negative"}
	}
	if c.WriteBufferSize < 0 {
		return &ConfigError{Field: "WriteBufferSize", Value: c.WriteBufferSize, Reason: "must not be negative"}
	}
	if strings.ContainsAny(c.Path, "?#") {
		return &ConfigError{Field: "Path", Value: c.Path, Reason: "must not contain a query or fragment"}
	}
	return nil
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	clone := *c
	clone.TransportOptions = append([]transport.Option(nil), c.TransportOptions...)
	clone.ConnectionOptions = append([]cdp.Option(nil), c.ConnectionOptions...)
	return &clone
}

// AllowAnyOrigin accepts every upgrade request.
func AllowAnyOrigin(*http.Request) bool {
	return true
}

// SameOriginCheck accepts upgrade requests without an Origin header or whose Origin
// host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// ConfigError reports an invalid ServerConfig field.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("server: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
