package xmlbroker

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/rs/zerolog"
)

// Options contains the communicator configuration.
type Options struct {
	// Transport derives the connection factory from the Config.
	Transport TransportFactory
	// Wrappers decorate the derived transport, outermost last.
	Wrappers []TransportWrapper

	// Codec converts documents to and from their wire form.
	Codec Codec

	// Logger receives state transitions and cleanup failures.
	Logger zerolog.Logger

	// ClientID identifies this client to brokers that support it.
	ClientID string
	// TLSConfig is the TLS configuration for secure connections.
	TLSConfig *tls.Config

	// ReceiveTimeout bounds the wait in ReceiveOne. Zero waits forever.
	ReceiveTimeout time.Duration

	// StateObserver is notified of every operation state transition.
	StateObserver StateObserver

	// Context carries driver-specific options.
	Context context.Context
}

type Option func(*Options)

func NewOptions(opts ...Option) *Options {
	options := Options{
		Codec:   XMLCodec{},
		Logger:  zerolog.Nop(),
		Context: context.Background(),
	}

	for _, o := range opts {
		o(&options)
	}

	return &options
}

// WithTransport sets the driver used to reach the broker.
func WithTransport(f TransportFactory) Option {
	return func(o *Options) {
		o.Transport = f
	}
}

// Wrap adds transport middleware.
func Wrap(w ...TransportWrapper) Option {
	return func(o *Options) {
		o.Wrappers = append(o.Wrappers, w...)
	}
}

// WithCodec replaces the document codec.
func WithCodec(c Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ClientID sets the client identifier advertised to the broker.
func ClientID(id string) Option {
	return func(o *Options) {
		o.ClientID = id
	}
}

// Specify TLS Config.
func TLSConfig(t *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = t
	}
}

// ReceiveTimeout bounds how long ReceiveOne waits for a message.
func ReceiveTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ReceiveTimeout = d
	}
}

// WithStateObserver registers a state transition callback.
func WithStateObserver(f StateObserver) Option {
	return func(o *Options) {
		o.StateObserver = f
	}
}

// WithValue stores a driver-specific option in Options.Context.
func WithValue(key, value any) Option {
	return func(o *Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = context.WithValue(o.Context, key, value)
	}
}
