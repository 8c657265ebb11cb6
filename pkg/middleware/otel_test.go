package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
)

// recordedSpan captures what the middleware writes to a span.
type recordedSpan struct {
	noop.Span

	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }
func (s *recordedSpan) SetStatus(code codes.Code, _ string)    { s.status = code }
func (s *recordedSpan) End(...trace.SpanEndOption)             { s.ended = true }
func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordedSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

type recordingProvider struct {
	embedded.TracerProvider

	mu    sync.Mutex
	names []string
	spans []*recordedSpan
}

func (p *recordingProvider) Tracer(name string, _ ...trace.TracerOption) trace.Tracer {
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()
	return &recordingTracer{provider: p}
}

type recordingTracer struct {
	embedded.Tracer
	provider *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordedSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, span)
	t.provider.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

func TestOpenTelemetryMiddleware_RecordsSpan(t *testing.T) {
	tp := &recordingProvider{}
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithTracerName("test-proxy"),
		WithAttributeExtractor(func(cdp.CallInfo) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)

	err := mw.HandleCall(context.Background(), cdp.CallInfo{ID: 7, Method: "Runtime.evaluate"}, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tp.names) != 1 || tp.names[0] != "test-proxy" {
		t.Fatalf("tracer names=%v, want [test-proxy]", tp.names)
	}
	if len(tp.spans) != 1 {
		t.Fatalf("spans=%d, want 1", len(tp.spans))
	}
	span := tp.spans[0]
	if span.name != "Runtime.evaluate" {
		t.Fatalf("span name=%q", span.name)
	}
	if span.kind != trace.SpanKindClient {
		t.Fatalf("span kind=%v, want client", span.kind)
	}
	if v, ok := span.attr("cdp.id"); !ok || v.AsInt64() != 7 {
		t.Fatalf("cdp.id=%v (present=%v), want 7", v.AsInt64(), ok)
	}
	if v, ok := span.attr("cdp.method"); !ok || v.AsString() != "Runtime.evaluate" {
		t.Fatalf("cdp.method=%q", v.AsString())
	}
	if _, ok := span.attr("test.attr"); !ok {
		t.Fatal("expected extracted attribute on span")
	}
	if span.status != codes.Ok || !span.ended {
		t.Fatalf("status=%v ended=%v, want Ok and ended", span.status, span.ended)
	}
}

func TestOpenTelemetryMiddleware_ProtocolError(t *testing.T) {
	tp := &recordingProvider{}
	mw := OpenTelemetry(WithTracerProvider(tp))

	wantErr := &cdp.ProtocolError{Code: -32601, Message: "Method not found", Method: "Foo.bar"}
	err := mw.HandleCall(context.Background(), cdp.CallInfo{ID: 1, Method: "Foo.bar"}, func() error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error %v, got %v", wantErr, err)
	}

	span := tp.spans[0]
	if span.status != codes.Error {
		t.Fatalf("status=%v, want Error", span.status)
	}
	if len(span.errs) != 1 {
		t.Fatalf("recorded errors=%d, want 1", len(span.errs))
	}
	if v, ok := span.attr("cdp.error_code"); !ok || v.AsInt64() != -32601 {
		t.Fatalf("cdp.error_code=%v (present=%v), want -32601", v.AsInt64(), ok)
	}
}

func TestOpenTelemetryMiddleware_FilterSkipsTracing(t *testing.T) {
	tp := &recordingProvider{}
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithCallFilter(func(info cdp.CallInfo) bool { return info.Method != "Runtime.enable" }),
	)

	nextCalled := false
	err := mw.HandleCall(context.Background(), cdp.CallInfo{Method: "Runtime.enable"}, func() error {
		nextCalled = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nextCalled {
		t.Fatal("expected next to be called")
	}
	if len(tp.spans) != 0 {
		t.Fatalf("expected no span when filter skips tracing, got %d", len(tp.spans))
	}
}

func TestOpenTelemetryMiddleware_GlobalProvider(t *testing.T) {
	// The default global provider is a no-op; the middleware must still pass through.
	err := OpenTelemetry().HandleCall(context.Background(), cdp.CallInfo{Method: "Page.enable"}, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
