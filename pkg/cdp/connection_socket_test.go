package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/cdpproxy/pkg/transport"
)

// echoURL serves a socket that sends every frame back, so a command comes back as a
// reply to itself.
func echoURL(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnection_CloseFromReplyListener(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := transport.Dial(ctx, echoURL(t), transport.WithCloseTimeout(200*time.Millisecond))
	require.NoError(t, err)
	conn := NewConnection(ws)

	closed := make(chan error, 1)
	conn.OnReply(func(*Message) {
		closed <- conn.Close(context.Background())
	})
	call := conn.Go(ctx, "Target.detachFromTarget", nil)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close called from a reply listener did not return")
	}

	_, err = call.Wait(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, 0, conn.Pending())

	select {
	case <-ws.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not end")
	}
}
