package xmlbroker

import (
	"context"
	"sync/atomic"
)

// NoopTransport accepts every connection and discards what is sent. Receive
// waits until its context ends. It backs dry runs, where a document should
// be validated and encoded without reaching a broker.
type NoopTransport struct {
	sent atomic.Int64
}

// NewNoopTransport returns a factory that always yields t.
func NewNoopTransport(t *NoopTransport) TransportFactory {
	return func(Config, Options) (Transport, error) {
		return t, nil
	}
}

// Sent returns how many messages were accepted.
func (t *NoopTransport) Sent() int64 {
	return t.sent.Load()
}

func (t *NoopTransport) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return noopConn{t: t}, nil
}

func (t *NoopTransport) String() string {
	return "noop"
}

type noopConn struct {
	t *NoopTransport
}

func (c noopConn) Session(context.Context) (Session, error) {
	return noopSession(c), nil
}

func (c noopConn) Close() error { return nil }

type noopSession struct {
	t *NoopTransport
}

func (s noopSession) Send(ctx context.Context, _ Destination, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.t.sent.Add(1)
	return nil
}

func (s noopSession) Receive(ctx context.Context, _ Destination) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s noopSession) Close() error { return nil }
