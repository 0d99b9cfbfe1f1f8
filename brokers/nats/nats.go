package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/qvcloud/xmlbroker"
)

const (
	defaultTimeout = 30 * time.Second
	pollInterval   = time.Second
	durableName    = "xmlbroker"
)

type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	SubscribeSync(subj string) (natsSub, error)
	JetStream() (queueStore, error)
	Close()
}

type natsSub interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
	Unsubscribe() error
}

// queueStore holds queued messages until a receiver takes them.
type queueStore interface {
	EnsureStream(ctx context.Context, stream, subject string) error
	Publish(ctx context.Context, m *nats.Msg) error
	Consumer(ctx context.Context, stream string) (queueConsumer, error)
}

type queueConsumer interface {
	Next(maxWait time.Duration) (queueMsg, error)
}

type queueMsg interface {
	Data() []byte
	DoubleAck(ctx context.Context) error
}

type connWrapper struct{ *nats.Conn }

func (w *connWrapper) SubscribeSync(subj string) (natsSub, error) {
	return w.Conn.SubscribeSync(subj)
}

func (w *connWrapper) JetStream() (queueStore, error) {
	js, err := jetstream.New(w.Conn)
	if err != nil {
		return nil, err
	}
	return &jsWrapper{js: js}, nil
}

type jsWrapper struct {
	js jetstream.JetStream
}

// EnsureStream declares a work-queue stream: each message is removed once
// one consumer acks it.
func (w *jsWrapper) EnsureStream(ctx context.Context, stream, subject string) error {
	_, err := w.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	return err
}

func (w *jsWrapper) Publish(ctx context.Context, m *nats.Msg) error {
	_, err := w.js.PublishMsg(ctx, m)
	return err
}

func (w *jsWrapper) Consumer(ctx context.Context, stream string) (queueConsumer, error) {
	c, err := w.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:   durableName,
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, err
	}
	return &consumerWrapper{c: c}, nil
}

type consumerWrapper struct {
	c jetstream.Consumer
}

func (w *consumerWrapper) Next(maxWait time.Duration) (queueMsg, error) {
	m, err := w.c.Next(jetstream.FetchMaxWait(maxWait))
	if err != nil {
		return nil, err
	}
	return m, nil
}

type natsTransport struct {
	addr   string
	opts   []nats.Option
	prefix string

	newConn func(addr string, opts ...nats.Option) (natsConn, error)
}

// NewTransport derives a NATS transport from cfg. Queues are JetStream
// work-queue streams so a document waits for its receiver; topics are core
// subjects. The tls:// scheme is handled by the client library itself.
func NewTransport(cfg xmlbroker.Config, opts xmlbroker.Options) (xmlbroker.Transport, error) {
	switch cfg.Scheme() {
	case "nats", "tls":
	default:
		return nil, fmt.Errorf("nats: unsupported scheme %q", cfg.Scheme())
	}

	u := cfg.Address()
	u.User = nil

	nopts := []nats.Option{}
	if opts.TLSConfig != nil {
		nopts = append(nopts, nats.Secure(opts.TLSConfig))
	}
	if opts.ClientID != "" {
		nopts = append(nopts, nats.Name(opts.ClientID))
	}

	creds := cfg.Credentials()
	if creds.Mode != xmlbroker.CredentialsAnonymous {
		nopts = append(nopts, nats.UserInfo(creds.Username, creds.Password))
	} else if ui := cfg.Address().User; ui != nil {
		pw, _ := ui.Password()
		nopts = append(nopts, nats.UserInfo(ui.Username(), pw))
	}

	prefix := ""
	if opts.Context != nil {
		if v, ok := opts.Context.Value(subjectPrefixKey{}).(string); ok {
			prefix = v
		}
	}

	return &natsTransport{
		addr:   u.String(),
		opts:   nopts,
		prefix: prefix,
		newConn: func(addr string, opts ...nats.Option) (natsConn, error) {
			nc, err := nats.Connect(addr, opts...)
			if err != nil {
				return nil, err
			}
			return &connWrapper{nc}, nil
		},
	}, nil
}

func (t *natsTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	opts := append([]nats.Option{nats.Timeout(timeout), nats.NoReconnect()}, t.opts...)

	conn, err := t.newConn(t.addr, opts...)
	if err != nil {
		return nil, classify("dial", err)
	}
	return &natsClient{conn: conn, prefix: t.prefix}, nil
}

func (t *natsTransport) String() string {
	return "nats"
}

func classify(op string, err error) error {
	if errors.Is(err, nats.ErrAuthorization) || errors.Is(err, nats.ErrAuthExpired) {
		return xmlbroker.NewError(xmlbroker.KindAuthentication, op, err)
	}
	return xmlbroker.NewError(xmlbroker.KindConnectivity, op, err)
}

type natsClient struct {
	conn   natsConn
	prefix string
}

// Session is a view over the connection; NATS core has no separate session.
func (c *natsClient) Session(ctx context.Context) (xmlbroker.Session, error) {
	return &natsSession{conn: c.conn, prefix: c.prefix}, nil
}

func (c *natsClient) Close() error {
	c.conn.Close()
	return nil
}

type natsSession struct {
	conn   natsConn
	prefix string
	js     queueStore
}

// subject keeps queues and topics of the same name apart.
func (s *natsSession) subject(dest xmlbroker.Destination) string {
	return s.prefix + dest.Kind.String() + "." + dest.Name
}

// queue declares the stream backing a queue destination.
func (s *natsSession) queue(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	if s.js == nil {
		js, err := s.conn.JetStream()
		if err != nil {
			return "", err
		}
		s.js = js
	}

	subj := s.subject(dest)
	stream := streamName(subj)
	if err := s.js.EnsureStream(ctx, stream, subj); err != nil {
		return "", fmt.Errorf("nats: stream %s: %w", stream, err)
	}
	return stream, nil
}

func (s *natsSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	nm := &nats.Msg{
		Subject: s.subject(dest),
		Header:  make(nats.Header),
		Data:    []byte(body),
	}
	nm.Header.Set("Content-Type", "text/xml")

	if dest.IsQueue() {
		if _, err := s.queue(ctx, dest); err != nil {
			return err
		}
		return s.js.Publish(ctx, nm)
	}

	if err := s.conn.PublishMsg(nm); err != nil {
		return err
	}
	return s.conn.FlushWithContext(ctx)
}

func (s *natsSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	if dest.IsQueue() {
		return s.receiveQueue(ctx, dest)
	}
	return s.receiveTopic(ctx, dest)
}

func (s *natsSession) receiveQueue(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	stream, err := s.queue(ctx, dest)
	if err != nil {
		return "", err
	}
	consumer, err := s.js.Consumer(ctx, stream)
	if err != nil {
		return "", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		// An empty fetch ends with a timeout; poll again until ctx ends.
		msg, err := consumer.Next(pollInterval)
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := msg.DoubleAck(ctx); err != nil {
			return "", err
		}
		return string(msg.Data()), nil
	}
}

func (s *natsSession) receiveTopic(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	sub, err := s.conn.SubscribeSync(s.subject(dest))
	if err != nil {
		return "", err
	}
	defer sub.Unsubscribe()

	// The interest must reach the server before we start waiting.
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return "", err
	}

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return "", err
	}
	return string(msg.Data), nil
}

func (s *natsSession) Close() error {
	return nil
}

// streamName derives a stream name from a subject. Stream names may not
// contain dots, wildcards, slashes or whitespace, so those are escaped.
func streamName(subject string) string {
	var b strings.Builder
	b.WriteString("XMLBROKER_")
	for _, r := range subject {
		switch {
		case r == '%', r == '.', r == '*', r == '>', r == '/', r == '\\',
			unicode.IsSpace(r), !unicode.IsPrint(r):
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type subjectPrefixKey struct{}

// WithSubjectPrefix prepends prefix to every subject, e.g. "acme." gives
// "acme.queue.orders".
func WithSubjectPrefix(prefix string) xmlbroker.Option {
	return xmlbroker.WithValue(subjectPrefixKey{}, prefix)
}
