package xmlbroker

import (
	"context"
)

// Communicator owns a Config and the transport derived from it. It holds no
// network resources between operations and is safe for concurrent use.
type Communicator struct {
	cfg       Config
	opts      Options
	transport Transport
}

// NewCommunicator derives the transport from cfg exactly once. A changed
// configuration needs a new Communicator.
func NewCommunicator(cfg Config, opts ...Option) (*Communicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := NewOptions(opts...)
	if options.Transport == nil {
		return nil, Errorf(KindConfiguration, "communicator", "no transport for scheme %q", cfg.Scheme())
	}
	if options.Codec == nil {
		options.Codec = XMLCodec{}
	}
	if options.Context == nil {
		options.Context = context.Background()
	}

	t, err := options.Transport(cfg, *options)
	if err != nil {
		return nil, NewError(KindConfiguration, "communicator", err)
	}
	for _, w := range options.Wrappers {
		t = w(t)
	}

	return &Communicator{
		cfg:       cfg,
		opts:      *options,
		transport: t,
	}, nil
}

func (c *Communicator) Config() Config   { return c.cfg }
func (c *Communicator) Options() Options { return c.opts }

// Destination resolves the configured queue or topic.
func (c *Communicator) Destination() Destination {
	return c.cfg.Destination()
}

// Open opens a new connection. The caller owns it and must close it.
func (c *Communicator) Open(ctx context.Context) (Conn, error) {
	conn, err := c.transport.Dial(ctx)
	if err != nil {
		if cerr := contextError(ctx, "dial"); cerr != nil {
			return nil, cerr
		}
		return nil, NewError(KindConnectivity, "dial", err)
	}
	return conn, nil
}

func (c *Communicator) String() string {
	return c.transport.String() + " " + c.cfg.String()
}
