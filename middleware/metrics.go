package middleware

import (
	"context"

	"github.com/qvcloud/xmlbroker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type counters struct {
	sent     metric.Int64Counter
	received metric.Int64Counter
	errors   metric.Int64Counter
}

// Metrics counts delivered messages and failures per operation. A nil meter
// is an error.
func Metrics(meter metric.Meter) (xmlbroker.TransportWrapper, error) {
	if meter == nil {
		return nil, xmlbroker.Errorf(xmlbroker.KindConfiguration, "metrics", "nil meter")
	}

	var (
		c   counters
		err error
	)
	if c.sent, err = meter.Int64Counter("xmlbroker.messages.sent",
		metric.WithDescription("Documents handed to the broker")); err != nil {
		return nil, err
	}
	if c.received, err = meter.Int64Counter("xmlbroker.messages.received",
		metric.WithDescription("Documents taken from the broker")); err != nil {
		return nil, err
	}
	if c.errors, err = meter.Int64Counter("xmlbroker.errors",
		metric.WithDescription("Failed dial, send and receive calls")); err != nil {
		return nil, err
	}

	return func(t xmlbroker.Transport) xmlbroker.Transport {
		return &meteredTransport{Transport: t, c: &c}
	}, nil
}

type meteredTransport struct {
	xmlbroker.Transport
	c *counters
}

func (t *meteredTransport) fail(ctx context.Context, op string, dest *xmlbroker.Destination) {
	attrs := []attribute.KeyValue{
		attribute.String("op", op),
		attribute.String("messaging.system", t.Transport.String()),
	}
	if dest != nil {
		attrs = append(attrs, attribute.String("messaging.destination.kind", dest.Kind.String()))
	}
	t.c.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (t *meteredTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	conn, err := t.Transport.Dial(ctx)
	if err != nil {
		t.fail(ctx, "dial", nil)
		return nil, err
	}
	return &meteredConn{Conn: conn, t: t}, nil
}

type meteredConn struct {
	xmlbroker.Conn
	t *meteredTransport
}

func (c *meteredConn) Session(ctx context.Context) (xmlbroker.Session, error) {
	s, err := c.Conn.Session(ctx)
	if err != nil {
		c.t.fail(ctx, "session", nil)
		return nil, err
	}
	return &meteredSession{Session: s, t: c.t}, nil
}

type meteredSession struct {
	xmlbroker.Session
	t *meteredTransport
}

func (s *meteredSession) attrs(dest xmlbroker.Destination) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("messaging.system", s.t.Transport.String()),
		attribute.String("messaging.destination.name", dest.Name),
		attribute.String("messaging.destination.kind", dest.Kind.String()),
	)
}

func (s *meteredSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	if err := s.Session.Send(ctx, dest, body); err != nil {
		s.t.fail(ctx, "send", &dest)
		return err
	}
	s.t.c.sent.Add(ctx, 1, s.attrs(dest))
	return nil
}

func (s *meteredSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	body, err := s.Session.Receive(ctx, dest)
	if err != nil {
		s.t.fail(ctx, "receive", &dest)
		return "", err
	}
	s.t.c.received.Add(ctx, 1, s.attrs(dest))
	return body, nil
}
