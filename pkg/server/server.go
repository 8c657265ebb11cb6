package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/event"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// ConnectionEvent is emitted for every accepted socket.
type ConnectionEvent struct {
	Conn      *cdp.Connection
	Transport *transport.WebSocket
	Request   *http.Request
}

// Server is the accepting side of the proxy: a discovery endpoint plus WebSocket
// upgrades on one listener.
type Server struct {
	config   *ServerConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	onConnection event.Emitter[*ConnectionEvent]

	mu         sync.Mutex
	started    bool
	disposed   bool
	listener   net.Listener
	httpServer *http.Server
	conns      map[*cdp.Connection]struct{}
	serveDone  chan struct{}

	disposeOnce sync.Once
	disposeErr  error
}

// New creates a new Server with the given configuration. A nil config uses
// DefaultServerConfig; unset fields of a non-nil one are filled from it.
func New(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config = config.Clone()
	}
	config.applyDefaults()

	s := &Server{
		config: config,
		logger: config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       config.CheckOrigin,
			EnableCompression: false,
		},
		conns: make(map[*cdp.Connection]struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.upgradeAnyPath)

	r.Get("/json/version", s.handleDiscovery)
	r.Get("/json", s.handleDiscovery)
	r.Get("/json/list", s.handleDiscovery)
	if s.config.MetricsHandler != nil {
		r.Handle("/metrics", s.config.MetricsHandler)
	}
	r.NotFound(s.handleDiscovery)
	r.MethodNotAllowed(s.handleDiscovery)
	return r
}

// upgradeAnyPath diverts every WebSocket upgrade, whatever its path, to the socket
// handler.
func (s *Server) upgradeAnyPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.HandleWebSocket(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server's http.Handler for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnConnection registers fn for accepted connections. Listeners run in registration
// order on the accepting goroutine, before the socket delivers anything, so a listener
// that pauses the Connection or attaches its own listeners misses nothing.
func (s *Server) OnConnection(fn func(*ConnectionEvent)) event.Disposer {
	return s.onConnection.AddListener(fn)
}

// HandleWebSocket upgrades r and emits the resulting Connection.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	opts := make([]transport.Option, 0, len(s.config.TransportOptions)+1)
	opts = append(opts, s.config.TransportOptions...)
	opts = append(opts, transport.WithManualStart())
	t := transport.New(conn, opts...)
	c := cdp.NewConnection(t, s.config.ConnectionOptions...)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		_ = c.Close(context.Background())
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.OnEnd(func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	})

	s.logger.Info("connection accepted", "remote", r.RemoteAddr, "path", r.URL.Path)
	s.onConnection.Emit(&ConnectionEvent{Conn: c, Transport: t, Request: r})
	t.Start()
}

// discoveryDocument is what debugger clients fetch to learn the socket address.
type discoveryDocument struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(discoveryDocument{
		WebSocketDebuggerURL: s.WebSocketURL(),
	}); err != nil {
		s.logger.Debug("discovery write failed", "error", err)
	}
}

// WebSocketURL is the socket address advertised by discovery. The port is the bound
// port once the server has started.
func (s *Server) WebSocketURL() string {
	port := s.config.Port
	if addr := s.Addr(); addr != nil {
		port = addr.Port
	}
	host := net.JoinHostPort(s.config.Host, strconv.Itoa(port))
	return fmt.Sprintf("ws://%s/%s", host, strings.TrimPrefix(s.config.Path, "/"))
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrServerClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return &ListenError{Address: address, Err: err}
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.serveDone = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.serveDone)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()

	s.logger.Info("server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() *net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// Connections returns the number of accepted connections that have not ended.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Run starts the server if needed and blocks until ctx ends or the process receives
// SIGINT or SIGTERM, then disposes the server.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	s.mu.Lock()
	serveDone := s.serveDone
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down...", "reason", ctx.Err())
	case sig := <-shutdown:
		s.logger.Info("shutting down...", "signal", sig.String())
	case <-serveDone:
	}
	return s.Dispose()
}

// Dispose stops the listener and the HTTP responder and closes every accepted
// Connection. It is idempotent; later calls return the first result.
func (s *Server) Dispose() error {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		httpServer := s.httpServer
		conns := make([]*cdp.Connection, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if httpServer != nil {
			if err := httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("shutdown error", "error", err)
				s.disposeErr = err
			}
		}

		var wg sync.WaitGroup
		for _, c := range conns {
			wg.Add(1)
			go func(c *cdp.Connection) {
				defer wg.Done()
				if err := c.Close(ctx); err != nil {
					s.logger.Debug("connection close", "error", err)
				}
			}(c)
		}
		wg.Wait()

		s.logger.Info("server shutdown complete")
	})
	return s.disposeErr
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
