// Package memory is an in-process broker with queue and topic semantics.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/qvcloud/xmlbroker"
)

var (
	ErrUnreachable = errors.New("memory: broker unreachable")
	ErrBadLogin    = errors.New("memory: invalid user name or password")
	ErrClosed      = errors.New("memory: connection closed")
)

type queue struct {
	msgs   []string
	notify chan struct{}
}

// Broker holds queues and topics in memory. The zero value is not usable;
// call New.
type Broker struct {
	mu sync.Mutex

	queues      map[string]*queue
	topics      map[string]map[string]chan string
	users       map[string]string
	unreachable bool
	conns       map[string]*memConn
}

func New() *Broker {
	return &Broker{
		queues: make(map[string]*queue),
		topics: make(map[string]map[string]chan string),
		users:  make(map[string]string),
		conns:  make(map[string]*memConn),
	}
}

// AddUser registers an account. Once any account exists, anonymous
// connections and unknown credentials are rejected.
func (b *Broker) AddUser(name, password string) {
	b.mu.Lock()
	b.users[name] = password
	b.mu.Unlock()
}

// SetReachable toggles whether Dial succeeds.
func (b *Broker) SetReachable(ok bool) {
	b.mu.Lock()
	b.unreachable = !ok
	b.mu.Unlock()
}

// Pending returns the number of messages waiting on a queue.
func (b *Broker) Pending(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.msgs)
	}
	return 0
}

// Subscribers returns the number of receivers waiting on a topic.
func (b *Broker) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[name])
}

// OpenConns returns the number of connections not yet closed.
func (b *Broker) OpenConns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Transport returns a factory bound to this broker.
func (b *Broker) Transport() xmlbroker.TransportFactory {
	return func(cfg xmlbroker.Config, opts xmlbroker.Options) (xmlbroker.Transport, error) {
		return &memTransport{broker: b, creds: cfg.Credentials()}, nil
	}
}

func (b *Broker) queue(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{notify: make(chan struct{})}
		b.queues[name] = q
	}
	return q
}

func (b *Broker) push(dest xmlbroker.Destination, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dest.IsTopic() {
		for _, sub := range b.topics[dest.Name] {
			select {
			case sub <- body:
			default:
			}
		}
		return
	}

	q := b.queue(dest.Name)
	q.msgs = append(q.msgs, body)
	close(q.notify)
	q.notify = make(chan struct{})
}

func (b *Broker) pop(ctx context.Context, name string, closed <-chan struct{}) (string, error) {
	for {
		b.mu.Lock()
		q := b.queue(name)
		if len(q.msgs) > 0 {
			msg := q.msgs[0]
			q.msgs = q.msgs[1:]
			b.mu.Unlock()
			return msg, nil
		}
		notify := q.notify
		b.mu.Unlock()

		select {
		case <-notify:
		case <-closed:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (b *Broker) subscribe(name string) (string, chan string) {
	id := uuid.New().String()
	ch := make(chan string, 1)

	b.mu.Lock()
	if b.topics[name] == nil {
		b.topics[name] = make(map[string]chan string)
	}
	b.topics[name][id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broker) unsubscribe(name, id string) {
	b.mu.Lock()
	delete(b.topics[name], id)
	if len(b.topics[name]) == 0 {
		delete(b.topics, name)
	}
	b.mu.Unlock()
}

type memTransport struct {
	broker *Broker
	creds  xmlbroker.Credentials
}

func (t *memTransport) Dial(ctx context.Context) (xmlbroker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := t.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unreachable {
		return nil, xmlbroker.NewError(xmlbroker.KindConnectivity, "dial", ErrUnreachable)
	}
	if len(b.users) > 0 {
		if t.creds.Mode == xmlbroker.CredentialsAnonymous {
			return nil, xmlbroker.NewError(xmlbroker.KindAuthentication, "dial", ErrBadLogin)
		}
		if pw, ok := b.users[t.creds.Username]; !ok || pw != t.creds.Password {
			return nil, xmlbroker.NewError(xmlbroker.KindAuthentication, "dial", ErrBadLogin)
		}
	}

	c := &memConn{
		id:     uuid.New().String(),
		broker: b,
		closed: make(chan struct{}),
	}
	b.conns[c.id] = c
	return c, nil
}

func (t *memTransport) String() string { return "memory" }

type memConn struct {
	id     string
	broker *Broker
	once   sync.Once
	closed chan struct{}
}

func (c *memConn) Session(ctx context.Context) (xmlbroker.Session, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	return &memSession{conn: c, closed: make(chan struct{})}, nil
}

// Close also unblocks any Receive pending on the connection's sessions.
func (c *memConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.broker.mu.Lock()
		delete(c.broker.conns, c.id)
		c.broker.mu.Unlock()
	})
	return nil
}

type memSession struct {
	conn   *memConn
	once   sync.Once
	closed chan struct{}
}

func (s *memSession) done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		select {
		case <-s.closed:
		case <-s.conn.closed:
		}
		close(ch)
	}()
	return ch
}

func (s *memSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	case <-s.conn.closed:
		return true
	default:
		return false
	}
}

func (s *memSession) Send(ctx context.Context, dest xmlbroker.Destination, body string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.conn.broker.push(dest, body)
	return nil
}

func (s *memSession) Receive(ctx context.Context, dest xmlbroker.Destination) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	done := s.done()

	if dest.IsQueue() {
		return s.conn.broker.pop(ctx, dest.Name, done)
	}

	id, ch := s.conn.broker.subscribe(dest.Name)
	defer s.conn.broker.unsubscribe(dest.Name, id)

	select {
	case msg := <-ch:
		return msg, nil
	case <-done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *memSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
