package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cdperrors "github.com/vango-dev/cdpproxy/internal/errors"
	"github.com/vango-dev/cdpproxy/internal/recorder"
	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/middleware"
)

// Session is one debugger client bridged to one debug target.
type Session struct {
	id        uuid.UUID
	targetURL string
	debugger  *cdp.Connection
	started   time.Time
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	target     *cdp.Connection
	transcript *recorder.Transcript
	spans      *middleware.RelaySpans
	ended      bool
	done       chan struct{}
}

// ID returns the session id used in logs, metrics and transcripts.
func (s *Session) ID() uuid.UUID { return s.id }

// TargetURL returns the target the session dials.
func (s *Session) TargetURL() string { return s.targetURL }

// Debugger returns the accepted connection of the debugger client.
func (s *Session) Debugger() *cdp.Connection { return s.debugger }

// Target returns the target connection, or nil while it is being dialed.
func (s *Session) Target() *cdp.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// StartedAt returns when the debugger client connected.
func (s *Session) StartedAt() time.Time { return s.started }

// Done is closed once both sides of the session are closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Context is cancelled when the session ends.
func (s *Session) Context() context.Context { return s.ctx }

// relay forwards msg to the other side of the session after running it through the
// interceptor.
func (s *Session) relay(intercept Interceptor, dir Direction, to *cdp.Connection, msg *cdp.Message) {
	if intercept != nil {
		msg = intercept(s, dir, msg)
		if msg == nil {
			middleware.RecordDropped(string(dir))
			s.logger.Debug("message dropped", "direction", dir)
			return
		}
	}

	raw := msg.Raw
	if raw == nil {
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Warn("relay encode failed", "direction", dir, "error", err)
			return
		}
		raw = data
	}

	s.mu.Lock()
	tr := s.transcript
	s.mu.Unlock()
	if tr != nil {
		tr.Record(recorder.Direction(dir), raw)
	}

	if s.spans != nil {
		if dir == ToTarget {
			s.spans.Forwarded(msg)
		} else {
			s.spans.Returned(msg)
		}
	}

	middleware.RecordRelayed(string(dir), msg.Kind())
	to.SendRaw(raw)
}

// end closes both sides once and reports whether this call ended the session.
func (s *Session) end(timeout time.Duration) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false
	}
	s.ended = true
	target := s.target
	tr := s.transcript
	s.mu.Unlock()

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, c := range []*cdp.Connection{s.debugger, target} {
		if c == nil {
			continue
		}
		wg.Add(1)
		go func(c *cdp.Connection) {
			defer wg.Done()
			if err := c.Close(ctx); err != nil {
				s.logger.Debug("close failed", "error", err)
			}
		}(c)
	}
	wg.Wait()

	if s.spans != nil {
		s.spans.Close()
	}
	if tr != nil {
		if err := tr.Close(ctx); err != nil {
			s.logger.Error("transcript close failed", "error", cdperrors.New("E304").Wrap(err))
		}
	}

	s.logger.Info("session ended", "duration", time.Since(s.started))
	close(s.done)
	return true
}
