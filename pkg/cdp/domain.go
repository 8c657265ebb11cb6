package cdp

import (
	"context"
	"encoding/json"

	"github.com/vango-dev/cdpproxy/pkg/event"
)

// Domain is a protocol namespace such as "Runtime" or "Target". Any method can be
// called and any event subscribed by name; nothing is checked against a schema.
type Domain struct {
	name string
	conn *Connection
}

// Domain returns the namespace called name, creating it on first use.
func (c *Connection) Domain(name string) *Domain {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.domains[name]
	if !ok {
		d = &Domain{name: name, conn: c}
		c.domains[name] = d
	}
	return d
}

// Name returns the domain name.
func (d *Domain) Name() string {
	return d.name
}

// Method returns the fully qualified name of method in this domain.
func (d *Domain) Method(method string) string {
	return d.name + "." + method
}

// Go issues "<domain>.<method>" without waiting.
func (d *Domain) Go(ctx context.Context, method string, params any) *Call {
	return d.conn.Go(ctx, d.Method(method), params)
}

// Call issues "<domain>.<method>" and decodes the result into result.
func (d *Domain) Call(ctx context.Context, method string, params, result any) error {
	return d.conn.Call(ctx, d.Method(method), params, result)
}

// On registers fn for the "<domain>.<event>" notification; fn receives its params.
func (d *Domain) On(eventName string, fn func(json.RawMessage)) event.Disposer {
	return d.conn.On(d.Method(eventName), func(m *Message) { fn(m.Params) })
}
