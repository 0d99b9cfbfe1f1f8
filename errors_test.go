package xmlbroker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	base := errors.New("connection refused")
	err := NewError(KindConnectivity, "dial", base)

	assert.ErrorIs(t, err, ErrConnectivity)
	assert.ErrorIs(t, err, base)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, KindConnectivity, KindOf(err))

	wrapped := fmt.Errorf("publish orders: %w", err)
	assert.ErrorIs(t, wrapped, ErrConnectivity)
	assert.Equal(t, KindConnectivity, KindOf(wrapped))
}

func TestNewError_KeepsInnerKind(t *testing.T) {
	inner := NewError(KindAuthentication, "dial", errors.New("ACCESS_REFUSED"))
	outer := NewError(KindConnectivity, "dial", inner)

	assert.Same(t, inner, outer)
	assert.Equal(t, KindAuthentication, KindOf(outer))
	assert.Nil(t, NewError(KindSend, "send", nil))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: KindIO, Op: "publish", Err: errors.New("no such file")}, "xmlbroker: publish: io error: no such file"},
		{&Error{Kind: KindMalformedDocument, Err: errors.New("bad")}, "xmlbroker: malformed document error: bad"},
		{&Error{Kind: KindSend}, "xmlbroker: send error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "configuration", KindConfiguration.String())
	assert.Equal(t, "canceled", KindCanceled.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestContextError(t *testing.T) {
	assert.NoError(t, contextError(context.Background(), "receive"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := contextError(ctx, "receive")
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}
