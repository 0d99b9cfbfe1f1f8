// Package xmlbroker publishes XML documents to a message broker destination
// and receives them back, one message per operation.
package xmlbroker

import (
	"context"
	"io"
)

// Transport is the connection factory of a broker driver. It is derived once
// from a Config and may be shared by concurrent operations.
type Transport interface {
	// Dial opens a new connection to the broker.
	Dial(ctx context.Context) (Conn, error)
	// String returns the name of the transport implementation.
	String() string
}

// Conn is a single broker connection. It is owned by exactly one operation
// and must be closed by it.
type Conn interface {
	// Session opens an auto-acknowledging session on the connection.
	Session(ctx context.Context) (Session, error)
	Close() error
}

// Session sends or receives the messages of one operation.
type Session interface {
	// Send delivers body as a single text message to dest.
	Send(ctx context.Context, dest Destination, body string) error
	// Receive blocks until exactly one message is available on dest and
	// returns its text body. The message is acknowledged on receipt.
	Receive(ctx context.Context, dest Destination) (string, error)
	Close() error
}

// TransportFactory derives a Transport from a validated Config.
type TransportFactory func(cfg Config, opts Options) (Transport, error)

// TransportWrapper decorates a Transport, e.g. with tracing or metrics.
type TransportWrapper func(Transport) Transport

// Codec converts a document stream to its canonical wire form and back.
type Codec interface {
	Encode(r io.Reader) (string, error)
	Decode(s string) (string, error)
	String() string
}
