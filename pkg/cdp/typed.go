package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vango-dev/cdpproxy/pkg/event"
)

// Invoke issues method and decodes the result as R.
func Invoke[R any](ctx context.Context, c *Connection, method string, params any) (R, error) {
	var result R
	err := c.Call(ctx, method, params, &result)
	return result, err
}

// Subscribe registers fn for the method notification with params decoded as T.
// Params that do not decode are reported on the connection's error channel.
func Subscribe[T any](c *Connection, method string, fn func(T)) event.Disposer {
	return c.On(method, func(m *Message) {
		var v T
		if len(m.Params) > 0 {
			if err := json.Unmarshal(m.Params, &v); err != nil {
				c.onError.Emit(fmt.Errorf("cdp: decode %s params: %w", method, err))
				return
			}
		}
		fn(v)
	})
}
