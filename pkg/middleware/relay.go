package middleware

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
)

// RelayTracer traces calls that a proxy forwards rather than issues. A span starts
// when a call is forwarded to the target and ends when the matching reply is
// forwarded back to the debugger.
//
// It accepts the same options as OpenTelemetry. The call filter and attribute
// extractor see the forwarded call's method and id.
type RelayTracer struct {
	config OTelConfig
}

// NewRelayTracer creates a RelayTracer.
func NewRelayTracer(opts ...OTelOption) *RelayTracer {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	config.tracer = config.TracerProvider.Tracer(config.TracerName)
	return &RelayTracer{config: config}
}

// Session starts tracking one proxied session. Spans are children of ctx and carry
// attrs.
func (r *RelayTracer) Session(ctx context.Context, attrs ...attribute.KeyValue) *RelaySpans {
	return &RelaySpans{
		rt:    r,
		ctx:   ctx,
		attrs: attrs,
		open:  make(map[relayKey]trace.Span),
	}
}

type relayKey struct {
	sessionID string
	id        int64
}

// RelaySpans holds the open spans of one session.
type RelaySpans struct {
	rt    *RelayTracer
	ctx   context.Context
	attrs []attribute.KeyValue

	mu     sync.Mutex
	open   map[relayKey]trace.Span
	closed bool
}

// Forwarded records a message sent toward the target. Only calls, commands that
// carry an id, open a span.
func (s *RelaySpans) Forwarded(msg *cdp.Message) {
	if msg.ID == nil || msg.Method == "" || msg.Kind() != cdp.KindCommand {
		return
	}
	info := cdp.CallInfo{Method: msg.Method, ID: *msg.ID}
	cfg := s.rt.config
	if cfg.Filter != nil && !cfg.Filter(info) {
		return
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("cdp.method", msg.Method),
		attribute.Int64("cdp.id", *msg.ID),
	}, s.attrs...)
	if msg.SessionID != "" {
		attrs = append(attrs, attribute.String("cdp.session_id", msg.SessionID))
	}
	if cfg.AttributeExtractor != nil {
		attrs = append(attrs, cfg.AttributeExtractor(info)...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	key := relayKey{msg.SessionID, *msg.ID}
	if prev, ok := s.open[key]; ok {
		prev.SetStatus(codes.Error, "call id reused")
		prev.End()
	}
	_, span := cfg.tracer.Start(s.ctx, msg.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	s.open[key] = span
}

// Returned records a message sent toward the debugger, ending the span of the call
// it answers.
func (s *RelaySpans) Returned(msg *cdp.Message) {
	if msg.ID == nil {
		return
	}
	kind := msg.Kind()
	if kind != cdp.KindSuccess && kind != cdp.KindError {
		return
	}

	key := relayKey{msg.SessionID, *msg.ID}
	s.mu.Lock()
	span, ok := s.open[key]
	delete(s.open, key)
	s.mu.Unlock()
	if !ok {
		return
	}

	if kind == cdp.KindError {
		span.SetAttributes(attribute.Int("cdp.error_code", msg.Error.Code))
		span.SetStatus(codes.Error, msg.Error.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Open returns the number of calls still awaiting a reply.
func (s *RelaySpans) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Close ends every open span as unanswered. Later calls are ignored.
func (s *RelaySpans) Close() {
	s.mu.Lock()
	open := s.open
	s.open = make(map[relayKey]trace.Span)
	s.closed = true
	s.mu.Unlock()

	for _, span := range open {
		span.SetStatus(codes.Error, "session ended before reply")
		span.End()
	}
}
