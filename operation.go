package xmlbroker

import (
	"context"

	"github.com/rs/zerolog"
)

// State is a step in the life of a publish or receive operation.
type State int

const (
	StateIdle State = iota
	StateConnectionOpen
	StateSessionOpen
	StateSent
	StateReceived
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectionOpen:
		return "connection-open"
	case StateSessionOpen:
		return "session-open"
	case StateSent:
		return "sent"
	case StateReceived:
		return "received"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// StateObserver is called on every state transition of an operation.
type StateObserver func(op string, s State)

// operation owns the connection and session of a single publish or receive.
type operation struct {
	name     string
	dest     Destination
	c        *Communicator
	log      zerolog.Logger
	state    State
	conn     Conn
	sess     Session
	observer StateObserver
}

func (c *Communicator) newOperation(name string) *operation {
	dest := c.Destination()
	return &operation{
		name:     name,
		dest:     dest,
		c:        c,
		observer: c.opts.StateObserver,
		log: c.opts.Logger.With().
			Str("op", name).
			Stringer("destination", dest).
			Str("transport", c.transport.String()).
			Logger(),
	}
}

func (o *operation) transition(s State) {
	o.state = s
	o.log.Debug().Stringer("state", s).Msg("state changed")
	if o.observer != nil {
		o.observer(o.name, s)
	}
}

// open establishes the connection and the session.
func (o *operation) open(ctx context.Context) error {
	if err := contextError(ctx, o.name); err != nil {
		return err
	}

	conn, err := o.c.Open(ctx)
	if err != nil {
		return err
	}
	o.conn = conn
	o.transition(StateConnectionOpen)

	sess, err := conn.Session(ctx)
	if err != nil {
		if cerr := contextError(ctx, "session"); cerr != nil {
			return cerr
		}
		return NewError(KindConnectivity, "session", err)
	}
	o.sess = sess
	o.transition(StateSessionOpen)
	return nil
}

// close releases the session, then the connection. Failures are logged and
// never replace the operation's own error.
func (o *operation) close() {
	if o.sess != nil {
		if err := o.sess.Close(); err != nil {
			o.log.Warn().Err(err).Msg("close session")
		}
		o.sess = nil
	}
	if o.conn != nil {
		if err := o.conn.Close(); err != nil {
			o.log.Warn().Err(err).Msg("close connection")
		}
		o.conn = nil
	}
	o.transition(StateClosed)
}
