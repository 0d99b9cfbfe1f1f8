// Package middleware provides TransportWrappers that instrument any broker
// driver with OpenTelemetry.
package middleware

import (
	"context"

	"github.com/qvcloud/xmlbroker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/qvcloud/xmlbroker"

// Tracing wraps a transport so that dial, send and receive each produce a
// span.
func Tracing(opts ...Option) xmlbroker.TransportWrapper {
	options := options{
		tracer: otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(&options)
	}

	return func(t xmlbroker.Transport) xmlbroker.Transport {
		return &tracedTransport{Transport: t, tracer: options.tracer}
	}
}

type tracedTransport struct {
	xmlbroker.Transport
	tracer trace.Tracer
}

func (t *tracedTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	ctx, span := t.tracer.Start(ctx, "xmlbroker.dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("messaging.system", t.Transport.String())),
	)
	defer span.End()

	conn, err := t.Transport.Dial(ctx)
	if err != nil {
		record(span, err)
		return nil, err
	}
	return &tracedConn{Conn: conn, t: t}, nil
}

type tracedConn struct {
	xmlbroker.Conn
	t *tracedTransport
}

func (c *tracedConn) Session(ctx context.Context) (xmlbroker.Session, error) {
	s, err := c.Conn.Session(ctx)
	if err != nil {
		return nil, err
	}
	return &tracedSession{Session: s, t: c.t}, nil
}

type tracedSession struct {
	xmlbroker.Session
	t *tracedTransport
}

func (s *tracedSession) start(ctx context.Context, name string, kind trace.SpanKind, dest xmlbroker.Destination) (context.Context, trace.Span) {
	return s.t.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("messaging.system", s.t.Transport.String()),
			attribute.String("messaging.destination.name", dest.Name),
			attribute.String("messaging.destination.kind", dest.Kind.String()),
		),
	)
}

func (s *tracedSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	ctx, span := s.start(ctx, "xmlbroker.send", trace.SpanKindProducer, dest)
	defer span.End()
	span.SetAttributes(attribute.Int("messaging.message.body.size", len(body)))

	err := s.Session.Send(ctx, dest, body)
	if err != nil {
		record(span, err)
	}
	return err
}

func (s *tracedSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	ctx, span := s.start(ctx, "xmlbroker.receive", trace.SpanKindConsumer, dest)
	defer span.End()

	body, err := s.Session.Receive(ctx, dest)
	if err != nil {
		record(span, err)
		return "", err
	}
	span.SetAttributes(attribute.Int("messaging.message.body.size", len(body)))
	return body, nil
}

func record(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

type options struct {
	tracer trace.Tracer
}

type Option func(*options)

func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}
