package xmlbroker

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without inspecting
// message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: bad or missing configuration. Never reaches the network.
	KindConfiguration
	// KindAuthentication: the broker rejected the credentials.
	KindAuthentication
	// KindConnectivity: the broker is unreachable or the transport could not be set up.
	KindConnectivity
	// KindMalformedDocument: the payload is not well-formed XML.
	KindMalformedDocument
	// KindIO: a local file could not be read.
	KindIO
	// KindSend: the transport rejected a send on an established session.
	KindSend
	// KindReceive: the transport failed while waiting for or reading a message.
	KindReceive
	// KindCanceled: the operation's context was canceled or timed out.
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindConfiguration:     "configuration",
	KindAuthentication:    "authentication",
	KindConnectivity:      "connectivity",
	KindMalformedDocument: "malformed document",
	KindIO:                "io",
	KindSend:              "send",
	KindReceive:           "receive",
	KindCanceled:          "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrConnectivity      = &Error{Kind: KindConnectivity}
	ErrMalformedDocument = &Error{Kind: KindMalformedDocument}
	ErrIO                = &Error{Kind: KindIO}
	ErrSend              = &Error{Kind: KindSend}
	ErrReceive           = &Error{Kind: KindReceive}
	ErrCanceled          = &Error{Kind: KindCanceled}
)

// Error is the error type returned by every exported operation.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "dial" or "publish".
	Op  string
	Err error
}

// NewError wraps err with a kind. If err already carries a kind it is
// returned unchanged so the innermost classification wins.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnknown {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("xmlbroker: %s: %s error: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("xmlbroker: %s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("xmlbroker: %s error", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// contextError classifies a context failure, or returns nil when ctx is live.
func contextError(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCanceled, Op: op, Err: err}
	}
	return nil
}
