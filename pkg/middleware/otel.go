package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/cdpproxy/pkg/cdp"
)

// Default tracer name for proxy spans.
const defaultTracerName = "cdpproxy"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "cdpproxy").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider.
	TracerProvider trace.TracerProvider

	// Filter determines which calls to trace.
	// Return true to trace the call, false to skip.
	// If nil, all calls are traced.
	Filter func(info cdp.CallInfo) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(info cdp.CallInfo) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithCallFilter sets a filter function for calls.
func WithCallFilter(filter func(info cdp.CallInfo) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(info cdp.CallInfo) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry creates call middleware that records one client span per call,
// from issue to settlement.
//
// Spans are named after the method and carry:
//   - cdp.method and cdp.id
//   - cdp.error_code when the reply is a protocol error
//   - error status and the recorded error on failure
//
// The tracer uses the global OpenTelemetry tracer provider unless one is given.
// Configure it in main() before opening connections:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) cdp.CallMiddleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	config.tracer = config.TracerProvider.Tracer(config.TracerName)

	return cdp.CallMiddlewareFunc(func(ctx context.Context, info cdp.CallInfo, next func() error) error {
		if config.Filter != nil && !config.Filter(info) {
			return next()
		}

		attrs := []attribute.KeyValue{
			attribute.String("cdp.method", info.Method),
			attribute.Int64("cdp.id", info.ID),
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(info)...)
		}

		_, span := config.tracer.Start(ctx, info.Method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next()

		if err != nil {
			var protocolErr *cdp.ProtocolError
			if errors.As(err, &protocolErr) {
				span.SetAttributes(attribute.Int("cdp.error_code", protocolErr.Code))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	})
}
