package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qvcloud/xmlbroker"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	defaultGroupPrefix = "xmlbroker-"
	dialTimeout        = 10 * time.Second
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaTransport struct {
	brokers     []string
	dialer      *kafka.Dialer
	transport   *kafka.Transport
	groupPrefix string

	// Internal factories for testing
	probe     func(ctx context.Context, d *kafka.Dialer, addr string) error
	newWriter func(w *kafka.Writer) kafkaWriter
	newReader func(cfg kafka.ReaderConfig) kafkaReader
}

// NewTransport derives a Kafka transport from cfg. The address host may be
// a comma separated bootstrap list, e.g. kafka://b1:9092,b2:9092.
func NewTransport(cfg xmlbroker.Config, opts xmlbroker.Options) (xmlbroker.Transport, error) {
	if cfg.Scheme() != "kafka" {
		return nil, fmt.Errorf("kafka: unsupported scheme %q", cfg.Scheme())
	}

	var brokers []string
	for _, b := range strings.Split(cfg.Address().Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: bootstrap address is required")
	}

	dialer := &kafka.Dialer{
		Timeout:   dialTimeout,
		DualStack: true,
		ClientID:  opts.ClientID,
		TLS:       opts.TLSConfig,
	}
	transport := &kafka.Transport{
		ClientID: opts.ClientID,
		TLS:      opts.TLSConfig,
	}

	creds := cfg.Credentials()
	if creds.Mode != xmlbroker.CredentialsAnonymous {
		mech := plain.Mechanism{Username: creds.Username, Password: creds.Password}
		dialer.SASLMechanism = mech
		transport.SASL = mech
	}

	prefix := defaultGroupPrefix
	if opts.Context != nil {
		if v, ok := opts.Context.Value(groupPrefixKey{}).(string); ok {
			prefix = v
		}
	}

	return &kafkaTransport{
		brokers:     brokers,
		dialer:      dialer,
		transport:   transport,
		groupPrefix: prefix,
		probe: func(ctx context.Context, d *kafka.Dialer, addr string) error {
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		newWriter: func(w *kafka.Writer) kafkaWriter {
			return w
		},
		newReader: func(cfg kafka.ReaderConfig) kafkaReader {
			return kafka.NewReader(cfg)
		},
	}, nil
}

// Dial checks that the bootstrap broker accepts the connection and the
// SASL handshake. kafka-go manages its own connections after that.
func (t *kafkaTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := t.probe(ctx, t.dialer, t.brokers[0]); err != nil {
		return nil, classify("dial", err)
	}
	return &kafkaConn{t: t}, nil
}

func (t *kafkaTransport) String() string {
	return "kafka"
}

func classify(op string, err error) error {
	if errors.Is(err, kafka.SASLAuthenticationFailed) || errors.Is(err, kafka.TopicAuthorizationFailed) {
		return xmlbroker.NewError(xmlbroker.KindAuthentication, op, err)
	}
	return xmlbroker.NewError(xmlbroker.KindConnectivity, op, err)
}

// topicName keeps queues and topics of the same name apart.
func topicName(dest xmlbroker.Destination) string {
	return dest.Kind.String() + "." + dest.Name
}

type kafkaConn struct {
	t *kafkaTransport
}

func (c *kafkaConn) Session(ctx context.Context) (xmlbroker.Session, error) {
	return &kafkaSession{t: c.t}, nil
}

func (c *kafkaConn) Close() error { return nil }

type kafkaSession struct {
	t      *kafkaTransport
	writer kafkaWriter
}

func (s *kafkaSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	if s.writer == nil {
		s.writer = s.t.newWriter(&kafka.Writer{
			Addr:                   kafka.TCP(s.t.brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Transport:              s.t.transport,
		})
	}

	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topicName(dest),
		Value: []byte(body),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("text/xml")},
		},
	})
}

// Receive reads one message. Queues share a consumer group per destination
// so each message is consumed once; a topic receive joins a group of its
// own and only sees messages published after it starts.
func (s *kafkaSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	cfg := kafka.ReaderConfig{
		Brokers:  s.t.brokers,
		Topic:    topicName(dest),
		Dialer:   s.t.dialer,
		MaxBytes: 10e6,
	}
	if dest.IsQueue() {
		cfg.GroupID = s.t.groupPrefix + dest.Name
		cfg.StartOffset = kafka.FirstOffset
	} else {
		cfg.GroupID = s.t.groupPrefix + dest.Name + "-" + uuid.New().String()
		cfg.StartOffset = kafka.LastOffset
	}

	reader := s.t.newReader(cfg)
	defer reader.Close()

	m, err := reader.FetchMessage(ctx)
	if err != nil {
		return "", err
	}
	if err := reader.CommitMessages(ctx, m); err != nil {
		return "", err
	}
	return string(m.Value), nil
}

func (s *kafkaSession) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}

type groupPrefixKey struct{}

// WithGroupPrefix replaces the "xmlbroker-" prefix of consumer group ids.
func WithGroupPrefix(prefix string) xmlbroker.Option {
	return xmlbroker.WithValue(groupPrefixKey{}, prefix)
}
