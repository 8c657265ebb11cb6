package cdpapi

import (
	"context"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
)

// Version is the result of Browser.getVersion.
type Version struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

// Browser is the typed facade of the Browser domain.
type Browser struct {
	conn *cdp.Connection
}

// NewBrowser returns the Browser facade of conn.
func NewBrowser(conn *cdp.Connection) *Browser {
	return &Browser{conn: conn}
}

// GetVersion calls Browser.getVersion.
func (b *Browser) GetVersion(ctx context.Context) (*Version, error) {
	v, err := cdp.Invoke[Version](ctx, b.conn, "Browser.getVersion", nil)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
