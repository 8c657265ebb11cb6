package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
)

func id(n int64) *int64 { return &n }

func TestRelayTracer_CallToReply(t *testing.T) {
	tp := &recordingProvider{}
	rt := NewRelayTracer(WithTracerProvider(tp), WithTracerName("relay"))
	spans := rt.Session(context.Background(), attribute.String("cdpproxy.session", "abc"))

	spans.Forwarded(&cdp.Message{ID: id(1), Method: "Runtime.evaluate", SessionID: "S1"})
	spans.Forwarded(&cdp.Message{ID: id(2), Method: "Page.navigate"})
	spans.Forwarded(&cdp.Message{Method: "Runtime.consoleAPICalled"})

	if len(tp.spans) != 2 {
		t.Fatalf("spans=%d, want 2 (events do not open spans)", len(tp.spans))
	}
	if spans.Open() != 2 {
		t.Fatalf("Open()=%d, want 2", spans.Open())
	}

	spans.Returned(&cdp.Message{ID: id(1), SessionID: "S1", Result: json.RawMessage(`{}`)})
	spans.Returned(&cdp.Message{ID: id(2), Error: &cdp.ErrorObject{Code: -32000, Message: "Cannot navigate"}})

	ok := tp.spans[0]
	if ok.name != "Runtime.evaluate" || ok.kind != trace.SpanKindServer {
		t.Fatalf("span=%q kind=%v", ok.name, ok.kind)
	}
	if v, found := ok.attr("cdp.session_id"); !found || v.AsString() != "S1" {
		t.Fatalf("cdp.session_id=%q", v.AsString())
	}
	if v, found := ok.attr("cdpproxy.session"); !found || v.AsString() != "abc" {
		t.Fatalf("cdpproxy.session=%q", v.AsString())
	}
	if ok.status != codes.Ok || !ok.ended {
		t.Fatalf("status=%v ended=%v, want Ok and ended", ok.status, ok.ended)
	}

	failed := tp.spans[1]
	if failed.status != codes.Error || !failed.ended {
		t.Fatalf("status=%v ended=%v, want Error and ended", failed.status, failed.ended)
	}
	if v, found := failed.attr("cdp.error_code"); !found || v.AsInt64() != -32000 {
		t.Fatalf("cdp.error_code=%v", v.AsInt64())
	}
	if spans.Open() != 0 {
		t.Fatalf("Open()=%d, want 0", spans.Open())
	}
}

func TestRelayTracer_RepliesMatchBySession(t *testing.T) {
	tp := &recordingProvider{}
	spans := NewRelayTracer(WithTracerProvider(tp)).Session(context.Background())

	spans.Forwarded(&cdp.Message{ID: id(5), Method: "DOM.enable", SessionID: "A"})
	spans.Returned(&cdp.Message{ID: id(5), SessionID: "B", Result: json.RawMessage(`{}`)})

	if tp.spans[0].ended {
		t.Fatal("a reply on another session must not end the span")
	}
}

func TestRelayTracer_CloseEndsOpenSpans(t *testing.T) {
	tp := &recordingProvider{}
	spans := NewRelayTracer(WithTracerProvider(tp)).Session(context.Background())

	spans.Forwarded(&cdp.Message{ID: id(1), Method: "Debugger.pause"})
	spans.Close()
	spans.Forwarded(&cdp.Message{ID: id(2), Method: "Debugger.resume"})

	if len(tp.spans) != 1 {
		t.Fatalf("spans=%d, want 1 (no spans after Close)", len(tp.spans))
	}
	if tp.spans[0].status != codes.Error || !tp.spans[0].ended {
		t.Fatalf("status=%v ended=%v, want Error and ended", tp.spans[0].status, tp.spans[0].ended)
	}
}

func TestRelayTracer_Filter(t *testing.T) {
	tp := &recordingProvider{}
	spans := NewRelayTracer(
		WithTracerProvider(tp),
		WithCallFilter(func(info cdp.CallInfo) bool { return info.Method != "Runtime.evaluate" }),
	).Session(context.Background())

	spans.Forwarded(&cdp.Message{ID: id(1), Method: "Runtime.evaluate"})
	spans.Forwarded(&cdp.Message{ID: id(2), Method: "Page.reload"})

	if len(tp.spans) != 1 || tp.spans[0].name != "Page.reload" {
		t.Fatalf("spans=%d, want only Page.reload", len(tp.spans))
	}
}
