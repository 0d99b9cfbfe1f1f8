package xmlbroker

import (
	"context"
)

// ReceiveOne blocks until one message arrives on the communicator's
// destination and returns its canonical XML. The wait is unbounded unless
// ctx ends or a ReceiveTimeout option is set.
func ReceiveOne(ctx context.Context, c *Communicator) (string, error) {
	if c == nil {
		return "", Errorf(KindConfiguration, "receive", "nil communicator")
	}

	if c.opts.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ReceiveTimeout)
		defer cancel()
	}

	op := c.newOperation("receive")
	defer op.close()

	if err := op.open(ctx); err != nil {
		return "", err
	}

	body, err := op.sess.Receive(ctx, op.dest)
	if err != nil {
		if cerr := contextError(ctx, "receive"); cerr != nil {
			return "", cerr
		}
		return "", NewError(KindReceive, "receive", err)
	}
	op.transition(StateReceived)

	doc, err := c.opts.Codec.Decode(body)
	if err != nil {
		return "", NewError(KindMalformedDocument, "receive", err)
	}
	op.log.Debug().Int("bytes", len(doc)).Msg("document received")

	return doc, nil
}
