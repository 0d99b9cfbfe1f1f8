package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qvcloud/xmlbroker"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "xmlbroker:"
	consumerGroup    = "xmlbroker"
	pollInterval     = time.Second
)

type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) redisPubSub
}

type redisPubSub interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type clientWrapper struct{ *redis.Client }

func (w *clientWrapper) Subscribe(ctx context.Context, channels ...string) redisPubSub {
	return w.Client.Subscribe(ctx, channels...)
}

type redisTransport struct {
	opts     *redis.Options
	prefix   string
	consumer string

	newClient func(opts *redis.Options) redisClient
}

// NewTransport derives a Redis transport from cfg. Queues are streams read
// through a shared consumer group; topics are pub/sub channels.
func NewTransport(cfg xmlbroker.Config, opts xmlbroker.Options) (xmlbroker.Transport, error) {
	switch cfg.Scheme() {
	case "redis", "rediss":
	default:
		return nil, fmt.Errorf("redis: unsupported scheme %q", cfg.Scheme())
	}

	ropts, err := redis.ParseURL(cfg.Address().String())
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	creds := cfg.Credentials()
	if creds.Mode != xmlbroker.CredentialsAnonymous {
		ropts.Username = creds.Username
		ropts.Password = creds.Password
	}
	if opts.TLSConfig != nil {
		ropts.TLSConfig = opts.TLSConfig
	}
	if opts.ClientID != "" {
		ropts.ClientName = opts.ClientID
	}
	ropts.ContextTimeoutEnabled = true

	prefix := defaultKeyPrefix
	if opts.Context != nil {
		if v, ok := opts.Context.Value(dbKey{}).(int); ok {
			ropts.DB = v
		}
		if v, ok := opts.Context.Value(keyPrefixKey{}).(string); ok {
			prefix = v
		}
	}

	consumer := opts.ClientID
	if consumer == "" {
		consumer = "consumer-" + uuid.New().String()
	}

	return &redisTransport{
		opts:     ropts,
		prefix:   prefix,
		consumer: consumer,
		newClient: func(opts *redis.Options) redisClient {
			return &clientWrapper{redis.NewClient(opts)}
		},
	}, nil
}

// Dial creates a client and pings it, since go-redis connects lazily.
func (t *redisTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := t.newClient(t.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, classify("dial", err)
	}
	return &redisConn{client: client, prefix: t.prefix, consumer: t.consumer}, nil
}

func (t *redisTransport) String() string { return "redis" }

func classify(op string, err error) error {
	msg := err.Error()
	if strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH") || strings.Contains(msg, "invalid username-password") {
		return xmlbroker.NewError(xmlbroker.KindAuthentication, op, err)
	}
	return xmlbroker.NewError(xmlbroker.KindConnectivity, op, err)
}

type redisConn struct {
	client   redisClient
	prefix   string
	consumer string
}

func (c *redisConn) Session(ctx context.Context) (xmlbroker.Session, error) {
	return &redisSession{conn: c}, nil
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

type redisSession struct {
	conn *redisConn
}

func (s *redisSession) key(dest xmlbroker.Destination) string {
	return s.conn.prefix + dest.Kind.String() + ":" + dest.Name
}

func (s *redisSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	client := s.conn.client
	key := s.key(dest)

	if dest.IsTopic() {
		return client.Publish(ctx, key, body).Err()
	}

	// Create the group before the first entry so nothing published ahead
	// of the first receiver is skipped.
	if err := s.ensureGroup(ctx, key); err != nil {
		return err
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"body": body},
	}).Err()
}

func (s *redisSession) ensureGroup(ctx context.Context, stream string) error {
	err := s.conn.client.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *redisSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	if dest.IsTopic() {
		return s.receiveTopic(ctx, s.key(dest))
	}
	return s.receiveQueue(ctx, s.key(dest))
}

func (s *redisSession) receiveQueue(ctx context.Context, stream string) (string, error) {
	client := s.conn.client
	if err := s.ensureGroup(ctx, stream); err != nil {
		return "", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: s.conn.consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    pollInterval,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return "", cerr
			}
			return "", err
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}

		xmsg := streams[0].Messages[0]
		if err := client.XAck(ctx, stream, consumerGroup, xmsg.ID).Err(); err != nil {
			return "", err
		}
		switch body := xmsg.Values["body"].(type) {
		case string:
			return body, nil
		case []byte:
			return string(body), nil
		default:
			return "", fmt.Errorf("redis: entry %s has no body", xmsg.ID)
		}
	}
}

func (s *redisSession) receiveTopic(ctx context.Context, channel string) (string, error) {
	ps := s.conn.client.Subscribe(ctx, channel)
	defer ps.Close()

	// Wait for the subscription confirmation so a publish right after
	// this point is not missed.
	if _, err := ps.Receive(ctx); err != nil {
		return "", err
	}

	select {
	case msg, ok := <-ps.Channel():
		if !ok {
			return "", fmt.Errorf("redis: subscription to %s closed", channel)
		}
		return msg.Payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *redisSession) Close() error { return nil }

type dbKey struct{}
type keyPrefixKey struct{}

// WithDB selects the logical database, overriding any /<db> in the address.
func WithDB(db int) xmlbroker.Option {
	return xmlbroker.WithValue(dbKey{}, db)
}

// WithKeyPrefix replaces the "xmlbroker:" prefix of stream and channel names.
func WithKeyPrefix(prefix string) xmlbroker.Option {
	return xmlbroker.WithValue(keyPrefixKey{}, prefix)
}
