package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/qvcloud/xmlbroker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, b *Broker, user, pass string) xmlbroker.Conn {
	t.Helper()
	cfg, err := xmlbroker.ParseConfig("memory://local", user, pass, "orders", false)
	require.NoError(t, err)
	tr, err := b.Transport()(cfg, *xmlbroker.NewOptions())
	require.NoError(t, err)
	conn, err := tr.Dial(context.Background())
	require.NoError(t, err)
	return conn
}

func TestMemory_QueueFIFO(t *testing.T) {
	b := New()
	conn := dial(t, b, "", "")
	defer conn.Close()

	s, err := conn.Session(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, xmlbroker.Queue("orders"), "one"))
	require.NoError(t, s.Send(ctx, xmlbroker.Queue("orders"), "two"))
	assert.Equal(t, 2, b.Pending("orders"))

	got, err := s.Receive(ctx, xmlbroker.Queue("orders"))
	require.NoError(t, err)
	assert.Equal(t, "one", got)
	got, err = s.Receive(ctx, xmlbroker.Queue("orders"))
	require.NoError(t, err)
	assert.Equal(t, "two", got)
	assert.Equal(t, 0, b.Pending("orders"))
}

func TestMemory_QueueAndTopicAreDistinct(t *testing.T) {
	b := New()
	conn := dial(t, b, "", "")
	defer conn.Close()
	s, _ := conn.Session(context.Background())

	require.NoError(t, s.Send(context.Background(), xmlbroker.Topic("orders"), "<t/>"))
	assert.Equal(t, 0, b.Pending("orders"))
}

func TestMemory_ReceiveBlocksUntilSend(t *testing.T) {
	b := New()
	conn := dial(t, b, "", "")
	defer conn.Close()
	s, _ := conn.Session(context.Background())

	done := make(chan string, 1)
	go func() {
		msg, err := s.Receive(context.Background(), xmlbroker.Queue("orders"))
		assert.NoError(t, err)
		done <- msg
	}()

	select {
	case <-done:
		t.Fatal("receive returned before any message was sent")
	case <-time.After(20 * time.Millisecond):
	}

	other := dial(t, b, "", "")
	defer other.Close()
	sender, _ := other.Session(context.Background())
	require.NoError(t, sender.Send(context.Background(), xmlbroker.Queue("orders"), "<late/>"))

	select {
	case msg := <-done:
		assert.Equal(t, "<late/>", msg)
	case <-time.After(time.Second):
		t.Fatal("receive did not wake up")
	}
}

func TestMemory_TopicFanOut(t *testing.T) {
	b := New()
	ctx := context.Background()

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		conn := dial(t, b, "", "")
		defer conn.Close()
		s, _ := conn.Session(ctx)
		go func() {
			msg, err := s.Receive(ctx, xmlbroker.Topic("news"))
			assert.NoError(t, err)
			results <- msg
		}()
	}

	require.Eventually(t, func() bool { return b.Subscribers("news") == 2 }, time.Second, 5*time.Millisecond)

	pub := dial(t, b, "", "")
	defer pub.Close()
	ps, _ := pub.Session(ctx)
	require.NoError(t, ps.Send(ctx, xmlbroker.Topic("news"), "<n/>"))

	for i := 0; i < 2; i++ {
		select {
		case msg := <-results:
			assert.Equal(t, "<n/>", msg)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the message")
		}
	}
	require.Eventually(t, func() bool { return b.Subscribers("news") == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemory_Dial(t *testing.T) {
	t.Run("Unreachable", func(t *testing.T) {
		b := New()
		b.SetReachable(false)
		cfg, _ := xmlbroker.ParseConfig("memory://local", "", "", "orders", false)
		tr, _ := b.Transport()(cfg, *xmlbroker.NewOptions())
		_, err := tr.Dial(context.Background())
		assert.ErrorIs(t, err, xmlbroker.ErrConnectivity)
		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("Credentials", func(t *testing.T) {
		b := New()
		b.AddUser("alice", "")
		b.AddUser("bob", "secret")

		cases := []struct {
			user, pass string
			ok         bool
		}{
			{"alice", "", true},
			{"bob", "secret", true},
			{"bob", "wrong", false},
			{"", "", false},
			{"mallory", "", false},
		}
		for _, tc := range cases {
			cfg, _ := xmlbroker.ParseConfig("memory://local", tc.user, tc.pass, "orders", false)
			tr, _ := b.Transport()(cfg, *xmlbroker.NewOptions())
			conn, err := tr.Dial(context.Background())
			if tc.ok {
				require.NoError(t, err, tc.user)
				conn.Close()
				continue
			}
			assert.ErrorIs(t, err, xmlbroker.ErrAuthentication, tc.user)
		}
		assert.Equal(t, 0, b.OpenConns())
	})
}

func TestMemory_CloseUnblocksReceive(t *testing.T) {
	b := New()
	conn := dial(t, b, "", "")
	s, _ := conn.Session(context.Background())
	assert.Equal(t, 1, b.OpenConns())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background(), xmlbroker.Queue("orders"))
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock receive")
	}
	assert.Equal(t, 0, b.OpenConns())

	_, err := conn.Session(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Send(context.Background(), xmlbroker.Queue("orders"), "x"), ErrClosed)
}

func TestMemory_LockingIsInternal(t *testing.T) {
	typ := reflect.TypeOf(&Broker{})
	for _, name := range []string{"Lock", "Unlock", "TryLock"} {
		_, ok := typ.MethodByName(name)
		assert.False(t, ok, "Broker must not export %s", name)
	}
}
