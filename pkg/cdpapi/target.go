package cdpapi

import (
	"context"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
	"github.com/vango-dev/cdpproxy/pkg/event"
)

// TargetInfo mirrors Target.TargetInfo.
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Attached bool   `json:"attached"`
}

// Target is the typed facade of the Target domain.
type Target struct {
	conn   *cdp.Connection
	domain *cdp.Domain
}

// NewTarget returns the Target facade of conn.
func NewTarget(conn *cdp.Connection) *Target {
	return &Target{conn: conn, domain: conn.Domain("Target")}
}

// SetDiscoverTargets calls Target.setDiscoverTargets.
func (t *Target) SetDiscoverTargets(ctx context.Context, discover bool) error {
	return t.domain.Call(ctx, "setDiscoverTargets", map[string]bool{"discover": discover}, nil)
}

// GetTargets calls Target.getTargets.
func (t *Target) GetTargets(ctx context.Context) ([]TargetInfo, error) {
	var result struct {
		TargetInfos []TargetInfo `json:"targetInfos"`
	}
	if err := t.domain.Call(ctx, "getTargets", nil, &result); err != nil {
		return nil, err
	}
	return result.TargetInfos, nil
}

// AttachToTarget calls Target.attachToTarget and returns the session id.
func (t *Target) AttachToTarget(ctx context.Context, targetID string, flatten bool) (string, error) {
	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten,omitempty"`
	}{targetID, flatten}

	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := t.domain.Call(ctx, "attachToTarget", params, &result); err != nil {
		return "", err
	}
	return result.SessionID, nil
}

// OnTargetCreated subscribes to Target.targetCreated.
func (t *Target) OnTargetCreated(fn func(TargetInfo)) event.Disposer {
	return cdp.Subscribe(t.conn, t.domain.Method("targetCreated"), func(e struct {
		TargetInfo TargetInfo `json:"targetInfo"`
	}) {
		fn(e.TargetInfo)
	})
}

// OnTargetDestroyed subscribes to Target.targetDestroyed.
func (t *Target) OnTargetDestroyed(fn func(targetID string)) event.Disposer {
	return cdp.Subscribe(t.conn, t.domain.Method("targetDestroyed"), func(e struct {
		TargetID string `json:"targetId"`
	}) {
		fn(e.TargetID)
	})
}
