package proxy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	cdperrors "github.com/vango-dev/cdpproxy/internal/errors"
	"github.com/vango-dev/cdpproxy/internal/recorder"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/event"
	"github.com/vango-dev/cdpproxy/pkg/middleware"
	"github.com/vango-dev/cdpproxy/pkg/server"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// TargetQueryParam names the query parameter that selects the target per connection.
const TargetQueryParam = "browser"

// ErrProxyClosed is returned by operations on a closed Proxy.
var ErrProxyClosed = errors.New("proxy: closed")

// Config configures a Proxy.
type Config struct {
	// DefaultTarget is dialed when the debugger's URL has no ?browser= parameter.
	DefaultTarget string

	// DialTimeout bounds each dial attempt. Default: 10s.
	DialTimeout time.Duration

	// MaxRetries is the number of extra dial attempts. Zero means a single attempt.
	MaxRetries int

	// RetryInitialInterval is the first backoff interval. Default: 250ms.
	RetryInitialInterval time.Duration

	// CloseTimeout bounds closing both sides of an ended session. Default: 5s.
	CloseTimeout time.Duration

	// Interceptors run, in order, on every relayed message.
	Interceptors []Interceptor

	// Recorder, if set, records every session.
	Recorder *recorder.Recorder

	// Tracer, if set, spans every relayed call from forward to reply.
	Tracer *middleware.RelayTracer

	// TransportOptions apply to target dials.
	TransportOptions []transport.Option

	// ConnectionOptions apply to target connections.
	ConnectionOptions []cdp.Option

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = 250 * time.Millisecond
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Proxy bridges every accepted debugger connection to a debug target.
type Proxy struct {
	config    Config
	logger    *slog.Logger
	intercept Interceptor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions map[uuid.UUID]*Session

	onSession    event.Emitter[*Session]
	onSessionEnd event.Emitter[*Session]
}

// New creates a Proxy.
func New(config Config) *Proxy {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	p := &Proxy{
		config:   config,
		logger:   config.Logger.With("component", "proxy"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[uuid.UUID]*Session),
	}
	if len(config.Interceptors) > 0 {
		p.intercept = ComposeInterceptors(config.Interceptors...)
	}
	return p
}

// Attach makes p handle every connection srv accepts.
func (p *Proxy) Attach(srv *server.Server) event.Disposer {
	return srv.OnConnection(p.HandleConnection)
}

// OnSession registers fn to run once a session's target is dialed and wired, just
// before buffered debugger traffic is released.
func (p *Proxy) OnSession(fn func(*Session)) event.Disposer {
	return p.onSession.AddListener(fn)
}

// OnSessionEnd registers fn to run after a session has closed both sides.
func (p *Proxy) OnSessionEnd(fn func(*Session)) event.Disposer {
	return p.onSessionEnd.AddListener(fn)
}

// Sessions returns the number of live sessions.
func (p *Proxy) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// HandleConnection starts a session for an accepted debugger connection. It must run
// before the connection delivers messages, which server.OnConnection guarantees.
func (p *Proxy) HandleConnection(ev *server.ConnectionEvent) {
	debugger := ev.Conn
	debugger.Pause()

	targetURL := p.config.DefaultTarget
	if ev.Request != nil {
		if q := ev.Request.URL.Query().Get(TargetQueryParam); q != "" {
			targetURL = q
		}
	}

	ctx, cancel := context.WithCancel(p.ctx)
	s := &Session{
		id:        uuid.New(),
		targetURL: targetURL,
		debugger:  debugger,
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.logger = p.logger.With("session", s.id)
	if p.config.Tracer != nil {
		s.spans = p.config.Tracer.Session(ctx,
			attribute.String("cdpproxy.session", s.id.String()),
			attribute.String("cdpproxy.target", targetURL),
		)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		p.logger.Warn("connection rejected", "error", ErrProxyClosed)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), p.config.CloseTimeout)
			defer cancel()
			_ = debugger.Close(ctx)
		}()
		return
	}
	p.sessions[s.id] = s
	p.mu.Unlock()

	debugger.OnError(func(err error) {
		middleware.RecordWebSocketError(err)
		s.logger.Warn("debugger error", "error", err)
	})
	debugger.OnEnd(func() { go p.endSession(s) })

	middleware.RecordSessionStart()
	remote := ""
	if ev.Request != nil {
		remote = ev.Request.RemoteAddr
	}
	s.logger.Info("session started", "remote", remote, "target", targetURL)

	go p.connect(s)
}

// connect dials the target and wires the session, or ends it.
func (p *Proxy) connect(s *Session) {
	if s.targetURL == "" {
		err := cdperrors.New("E203").
			WithSuggestion("Connect with ?" + TargetQueryParam + "=ws://... or configure target.url")
		s.logger.Error("no target", "error", err)
		p.endSession(s)
		return
	}

	t, err := p.dial(s.ctx, s.logger, s.targetURL)
	if err != nil {
		if s.ctx.Err() == nil {
			middleware.RecordDialFailure()
			perr := cdperrors.New("E201").WithDetail("Could not reach " + s.targetURL).Wrap(err)
			s.logger.Error("target dial failed", "error", perr)
		}
		p.endSession(s)
		return
	}

	target := cdp.NewConnection(t, p.config.ConnectionOptions...)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), p.config.CloseTimeout)
		defer cancel()
		_ = target.Close(ctx)
		return
	}
	s.target = target
	if p.config.Recorder != nil {
		tr, err := p.config.Recorder.Open(s.id)
		if err != nil {
			s.logger.Error("recording disabled", "error", err)
		} else {
			s.transcript = tr
		}
	}
	s.mu.Unlock()

	target.OnError(func(err error) {
		middleware.RecordWebSocketError(err)
		s.logger.Warn("target error", "error", err)
	})
	target.OnEnd(func() { go p.endSession(s) })

	toDebugger := func(msg *cdp.Message) { s.relay(p.intercept, ToDebugger, s.debugger, msg) }
	toTarget := func(msg *cdp.Message) { s.relay(p.intercept, ToTarget, target, msg) }
	target.OnCommand(toDebugger)
	target.OnReply(toDebugger)
	s.debugger.OnCommand(toTarget)
	s.debugger.OnReply(toTarget)

	s.logger.Info("target connected", "target", s.targetURL)
	p.onSession.Emit(s)

	t.Start()
	s.debugger.Unpause()
}

// dial connects to url, retrying with exponential backoff.
func (p *Proxy) dial(ctx context.Context, logger *slog.Logger, url string) (*transport.WebSocket, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.config.RetryInitialInterval
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(p.config.MaxRetries))
	b = backoff.WithContext(b, ctx)

	opts := make([]transport.Option, 0, len(p.config.TransportOptions)+2)
	opts = append(opts, transport.WithLogger(logger))
	opts = append(opts, p.config.TransportOptions...)
	opts = append(opts, transport.WithManualStart())

	return backoff.RetryNotifyWithData(
		func() (*transport.WebSocket, error) {
			dialCtx, cancel := context.WithTimeout(ctx, p.config.DialTimeout)
			defer cancel()

			t, err := transport.Dial(dialCtx, url, opts...)
			if err != nil && ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return t, err
		},
		b,
		func(err error, next time.Duration) {
			middleware.RecordDialRetry()
			logger.Warn("target dial failed, retrying", "error", err, "in", next)
		},
	)
}

func (p *Proxy) endSession(s *Session) {
	if !s.end(p.config.CloseTimeout) {
		return
	}

	p.mu.Lock()
	delete(p.sessions, s.id)
	p.mu.Unlock()

	middleware.RecordSessionEnd()
	p.onSessionEnd.Emit(s)
}

// Close stops accepting sessions, aborts pending dials and ends every live session.
// It waits for the sessions to finish closing or for ctx to end.
func (p *Proxy) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	p.cancel()
	for _, s := range sessions {
		go p.endSession(s)
	}

	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
