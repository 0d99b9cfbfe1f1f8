package kafka

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/qvcloud/xmlbroker"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	writeFunc   func(ctx context.Context, msgs ...kafka.Message) error
	closeCalled bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockWriter) Close() error {
	m.closeCalled = true
	return nil
}

type mockReader struct {
	fetchFunc   func(ctx context.Context) (kafka.Message, error)
	commitFunc  func(ctx context.Context, msgs ...kafka.Message) error
	closeCalled bool
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.commitFunc != nil {
		return m.commitFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockReader) Close() error {
	m.closeCalled = true
	return nil
}

func newTestTransport(t *testing.T, addr, user, pass string, opts ...xmlbroker.Option) *kafkaTransport {
	t.Helper()
	cfg, err := xmlbroker.ParseConfig(addr, user, pass, "orders", false)
	require.NoError(t, err)
	tr, err := NewTransport(cfg, *xmlbroker.NewOptions(opts...))
	require.NoError(t, err)
	return tr.(*kafkaTransport)
}

func TestKafka_NewTransport(t *testing.T) {
	t.Run("Bootstrap", func(t *testing.T) {
		tr := newTestTransport(t, "kafka://b1:9092,b2:9092", "", "")
		assert.Equal(t, []string{"b1:9092", "b2:9092"}, tr.brokers)
		assert.Nil(t, tr.dialer.SASLMechanism)
		assert.Nil(t, tr.transport.SASL)
		assert.Equal(t, defaultGroupPrefix, tr.groupPrefix)
		assert.Equal(t, "kafka", tr.String())
	})

	t.Run("SASLPlain", func(t *testing.T) {
		tr := newTestTransport(t, "kafka://b1:9092", "alice", "", xmlbroker.ClientID("uploader"))
		mech, ok := tr.dialer.SASLMechanism.(plain.Mechanism)
		require.True(t, ok)
		assert.Equal(t, "alice", mech.Username)
		assert.Equal(t, "", mech.Password)
		assert.Equal(t, tr.dialer.SASLMechanism, tr.transport.SASL)
		assert.Equal(t, "uploader", tr.dialer.ClientID)
	})

	t.Run("GroupPrefix", func(t *testing.T) {
		tr := newTestTransport(t, "kafka://b1:9092", "", "", WithGroupPrefix("acme-"))
		assert.Equal(t, "acme-", tr.groupPrefix)
	})

	t.Run("UnsupportedScheme", func(t *testing.T) {
		cfg, err := xmlbroker.ParseConfig("nats://b1:4222", "", "", "orders", false)
		require.NoError(t, err)
		_, err = NewTransport(cfg, *xmlbroker.NewOptions())
		assert.Error(t, err)
	})
}

func TestKafka_Dial(t *testing.T) {
	tr := newTestTransport(t, "kafka://b1:9092,b2:9092", "alice", "pw")

	t.Run("Success", func(t *testing.T) {
		tr.probe = func(ctx context.Context, d *kafka.Dialer, addr string) error {
			assert.Equal(t, "b1:9092", addr)
			return nil
		}
		conn, err := tr.Dial(context.Background())
		require.NoError(t, err)
		assert.NoError(t, conn.Close())
	})

	t.Run("SASLRejected", func(t *testing.T) {
		tr.probe = func(context.Context, *kafka.Dialer, string) error {
			return fmt.Errorf("sasl handshake: %w", kafka.SASLAuthenticationFailed)
		}
		_, err := tr.Dial(context.Background())
		assert.Equal(t, xmlbroker.KindAuthentication, xmlbroker.KindOf(err))
	})

	t.Run("Unreachable", func(t *testing.T) {
		tr.probe = func(context.Context, *kafka.Dialer, string) error {
			return fmt.Errorf("dial tcp: lookup b1: no such host")
		}
		_, err := tr.Dial(context.Background())
		assert.Equal(t, xmlbroker.KindConnectivity, xmlbroker.KindOf(err))
	})
}

func TestKafka_Send(t *testing.T) {
	tr := newTestTransport(t, "kafka://b1:9092", "", "")
	mockW := &mockWriter{}
	var built *kafka.Writer
	tr.newWriter = func(w *kafka.Writer) kafkaWriter {
		built = w
		return mockW
	}

	s := &kafkaSession{t: tr}

	t.Run("Success", func(t *testing.T) {
		var captured []kafka.Message
		mockW.writeFunc = func(ctx context.Context, msgs ...kafka.Message) error {
			captured = msgs
			return nil
		}
		require.NoError(t, s.Send(context.Background(), xmlbroker.Queue("orders"), "<a/>"))
		require.Len(t, captured, 1)
		assert.Equal(t, "queue.orders", captured[0].Topic)
		assert.Equal(t, []byte("<a/>"), captured[0].Value)

		require.NotNil(t, built)
		assert.Equal(t, kafka.RequireAll, built.RequiredAcks)
		assert.True(t, built.AllowAutoTopicCreation)

		require.NoError(t, s.Send(context.Background(), xmlbroker.Topic("orders"), "<a/>"))
		assert.Equal(t, "topic.orders", captured[0].Topic)
	})

	t.Run("Failure", func(t *testing.T) {
		mockW.writeFunc = func(ctx context.Context, msgs ...kafka.Message) error {
			return fmt.Errorf("kafka error")
		}
		assert.Error(t, s.Send(context.Background(), xmlbroker.Queue("orders"), "<a/>"))
	})

	require.NoError(t, s.Close())
	assert.True(t, mockW.closeCalled)
}

func TestKafka_Receive(t *testing.T) {
	t.Run("QueueSharesGroup", func(t *testing.T) {
		tr := newTestTransport(t, "kafka://b1:9092", "", "")
		mockR := &mockReader{}
		var cfg kafka.ReaderConfig
		tr.newReader = func(c kafka.ReaderConfig) kafkaReader {
			cfg = c
			return mockR
		}
		mockR.fetchFunc = func(ctx context.Context) (kafka.Message, error) {
			return kafka.Message{Topic: "queue.orders", Value: []byte("<a/>")}, nil
		}
		var committed []kafka.Message
		mockR.commitFunc = func(ctx context.Context, msgs ...kafka.Message) error {
			committed = msgs
			return nil
		}

		s := &kafkaSession{t: tr}
		body, err := s.Receive(context.Background(), xmlbroker.Queue("orders"))
		require.NoError(t, err)
		assert.Equal(t, "<a/>", body)
		assert.Equal(t, "queue.orders", cfg.Topic)
		assert.Equal(t, "xmlbroker-orders", cfg.GroupID)
		assert.Equal(t, kafka.FirstOffset, cfg.StartOffset)
		assert.Len(t, committed, 1)
		assert.True(t, mockR.closeCalled)
	})

	t.Run("TopicFreshGroup", func(t *testing.T) {
		tr := newTestTransport(t, "kafka://b1:9092", "", "")
		var groups []string
		tr.newReader = func(c kafka.ReaderConfig) kafkaReader {
			groups = append(groups, c.GroupID)
			assert.Equal(t, kafka.LastOffset, c.StartOffset)
			return &mockReader{fetchFunc: func(context.Context) (kafka.Message, error) {
				return kafka.Message{Value: []byte("<t/>")}, nil
			}}
		}

		s := &kafkaSession{t: tr}
		for i := 0; i < 2; i++ {
			_, err := s.Receive(context.Background(), xmlbroker.Topic("orders"))
			require.NoError(t, err)
		}
		require.Len(t, groups, 2)
		assert.NotEqual(t, groups[0], groups[1])
	})

	t.Run("Canceled", func(t *testing.T) {
		tr := newTestTransport(t, "kafka://b1:9092", "", "")
		mockR := &mockReader{}
		tr.newReader = func(kafka.ReaderConfig) kafkaReader { return mockR }

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		s := &kafkaSession{t: tr}
		_, err := s.Receive(ctx, xmlbroker.Queue("orders"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, mockR.closeCalled)
	})
}
