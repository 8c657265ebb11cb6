package cdp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/vango-dev/cdpproxy/pkg/event"
	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// fakeTransport records sent frames and lets tests inject inbound ones.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []json.RawMessage
	closed   int
	closeErr error

	onError   event.Emitter[error]
	onMessage event.Emitter[json.RawMessage]
	onEnd     event.Emitter[struct{}]
}

var _ transport.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Send(msg any) {
	var data []byte
	switch m := msg.(type) {
	case json.RawMessage:
		data = m
	default:
		var err error
		data, err = json.Marshal(msg)
		if err != nil {
			f.onError.Emit(err)
			return
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
}

func (f *fakeTransport) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeTransport) OnError(fn func(error)) event.Disposer {
	return f.onError.AddListener(fn)
}

func (f *fakeTransport) OnMessage(fn func(json.RawMessage)) event.Disposer {
	return f.onMessage.AddListener(fn)
}

func (f *fakeTransport) OnEnd(fn func()) event.Disposer {
	return f.onEnd.AddListener(func(struct{}) { fn() })
}

func (f *fakeTransport) deliver(frame string) {
	f.onMessage.Emit(json.RawMessage(frame))
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = string(s)
	}
	return out
}

func newTestConnection(t *testing.T, opts ...Option) (*Connection, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	return NewConnection(ft, opts...), ft
}
