package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for shell spans.
var (
	AttrRunID         = attribute.Key("clawshell.run.id")
	AttrPID           = attribute.Key("clawshell.child.pid")
	AttrPort          = attribute.Key("clawshell.gateway.port")
	AttrExitCode      = attribute.Key("clawshell.child.exit_code")
	AttrSignal        = attribute.Key("clawshell.child.signal")
	AttrAttachAttempt = attribute.Key("clawshell.attach.attempt")
	AttrSurface       = attribute.Key("clawshell.attach.surface")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (control UI probe, health check).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
