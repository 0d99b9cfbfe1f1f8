package xmlbroker

import (
	"context"
	"io"
	"os"
)

// Publish sends the XML document at path as a single text message to the
// communicator's destination. The connection and session are released on
// every path; nothing is retried.
func Publish(ctx context.Context, c *Communicator, path string) error {
	return c.publish(ctx, path, func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// PublishReader is Publish with the document read from r.
func PublishReader(ctx context.Context, c *Communicator, r io.Reader) error {
	return c.publish(ctx, "<reader>", func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	})
}

func (c *Communicator) publish(ctx context.Context, source string, open func() (io.ReadCloser, error)) error {
	if c == nil {
		return Errorf(KindConfiguration, "publish", "nil communicator")
	}

	op := c.newOperation("publish")
	defer op.close()

	if err := op.open(ctx); err != nil {
		return err
	}

	f, err := open()
	if err != nil {
		return NewError(KindIO, "publish", err)
	}
	defer f.Close()

	body, err := c.opts.Codec.Encode(f)
	if err != nil {
		return NewError(KindMalformedDocument, "publish", err)
	}

	if err := op.sess.Send(ctx, op.dest, body); err != nil {
		if cerr := contextError(ctx, "send"); cerr != nil {
			return cerr
		}
		return NewError(KindSend, "send", err)
	}
	op.transition(StateSent)
	op.log.Debug().Str("source", source).Int("bytes", len(body)).Msg("document published")

	return nil
}
