package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/qvcloud/xmlbroker"
	amqp "github.com/rabbitmq/amqp091-go"
)

const dialTimeout = 30 * time.Second

type rabbitConn interface {
	Channel() (rabbitChannel, error)
	Close() error
}

type rabbitChannel interface {
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

type connWrapper struct{ *amqp.Connection }

func (w *connWrapper) Channel() (rabbitChannel, error) {
	return w.Connection.Channel()
}

type rmqTransport struct {
	url     string
	config  amqp.Config
	durable bool

	// Internal factories for testing
	newConn func(url string, config amqp.Config) (rabbitConn, error)
}

// NewTransport derives an AMQP 0-9-1 transport from cfg. A tcp:// address
// is treated as amqp://.
func NewTransport(cfg xmlbroker.Config, opts xmlbroker.Options) (xmlbroker.Transport, error) {
	u := cfg.Address()
	switch cfg.Scheme() {
	case "amqp", "amqps":
	case "tcp":
		u.Scheme = "amqp"
	default:
		return nil, fmt.Errorf("rabbitmq: unsupported scheme %q", u.Scheme)
	}

	config := amqp.Config{
		TLSClientConfig: opts.TLSConfig,
	}
	if opts.ClientID != "" {
		config.Properties = amqp.Table{
			"connection_name": opts.ClientID,
		}
	}

	creds := cfg.Credentials()
	if creds.Mode != xmlbroker.CredentialsAnonymous {
		config.SASL = []amqp.Authentication{
			&amqp.PlainAuth{Username: creds.Username, Password: creds.Password},
		}
	}

	durable := true
	if opts.Context != nil {
		if v, ok := opts.Context.Value(durableKey{}).(bool); ok {
			durable = v
		}
	}

	return &rmqTransport{
		url:     u.String(),
		config:  config,
		durable: durable,
		newConn: func(addr string, config amqp.Config) (rabbitConn, error) {
			conn, err := amqp.DialConfig(addr, config)
			if err != nil {
				return nil, err
			}
			return &connWrapper{conn}, nil
		},
	}, nil
}

func (t *rmqTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	config := t.config
	config.Dial = func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(dialTimeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}

	conn, err := t.newConn(t.url, config)
	if err != nil {
		return nil, classify("dial", err)
	}
	return &rmqConn{conn: conn, durable: t.durable}, nil
}

func (t *rmqTransport) String() string {
	return "rabbitmq"
}

// classify maps ACCESS_REFUSED (bad credentials or vhost) to an
// authentication failure and everything else to connectivity.
func classify(op string, err error) error {
	var aerr *amqp.Error
	if errors.As(err, &aerr) && aerr.Code == amqp.AccessRefused {
		return xmlbroker.NewError(xmlbroker.KindAuthentication, op, err)
	}
	return xmlbroker.NewError(xmlbroker.KindConnectivity, op, err)
}

type rmqConn struct {
	conn    rabbitConn
	durable bool
}

func (c *rmqConn) Session(ctx context.Context) (xmlbroker.Session, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	return &rmqSession{ch: ch, durable: c.durable}, nil
}

func (c *rmqConn) Close() error {
	return c.conn.Close()
}

type rmqSession struct {
	ch      rabbitChannel
	durable bool
}

// declare makes sure the destination exists and returns the exchange and
// routing key to publish with. Queues use the default exchange; topics are
// fanout exchanges of the same name.
func (s *rmqSession) declare(dest xmlbroker.Destination) (exchange, key string, err error) {
	if dest.IsTopic() {
		err = s.ch.ExchangeDeclare(
			dest.Name,           // name
			amqp.ExchangeFanout, // kind
			s.durable,           // durable
			false,               // auto-deleted
			false,               // internal
			false,               // no-wait
			nil,                 // arguments
		)
		return dest.Name, "", err
	}

	_, err = s.ch.QueueDeclare(
		dest.Name, // name
		s.durable, // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	return "", dest.Name, err
}

func (s *rmqSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	exchange, key, err := s.declare(dest)
	if err != nil {
		return err
	}

	deliveryMode := amqp.Transient
	if s.durable {
		deliveryMode = amqp.Persistent
	}

	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx,
		exchange, // exchange
		key,      // routing key
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			ContentType:  "text/xml",
			Body:         []byte(body),
			DeliveryMode: deliveryMode,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
		})
	if err != nil {
		return err
	}
	if dc == nil {
		return nil
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("rabbitmq: message was nacked by the broker")
	}
	return nil
}

func (s *rmqSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	exchange, _, err := s.declare(dest)
	if err != nil {
		return "", err
	}

	queue := dest.Name
	if exchange != "" {
		q, err := s.ch.QueueDeclare(
			"",    // server-named
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return "", err
		}
		if err := s.ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
			return "", err
		}
		queue = q.Name
	}

	// One unacknowledged message at a time; anything else the broker pushes
	// before the cancel is requeued when the channel closes.
	if err := s.ch.Qos(1, 0, false); err != nil {
		return "", err
	}

	tag := "xmlbroker-" + uuid.New().String()
	deliveries, err := s.ch.Consume(
		queue, // queue
		tag,   // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return "", err
	}
	defer s.ch.Cancel(tag, false)

	select {
	case d, ok := <-deliveries:
		if !ok {
			return "", errors.New("rabbitmq: consumer closed before a message arrived")
		}
		if err := d.Ack(false); err != nil {
			return "", err
		}
		return string(d.Body), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *rmqSession) Close() error {
	return s.ch.Close()
}

type durableKey struct{}

// WithDurable controls whether queues, exchanges and messages survive a
// broker restart. Default: true.
func WithDurable(durable bool) xmlbroker.Option {
	return xmlbroker.WithValue(durableKey{}, durable)
}
