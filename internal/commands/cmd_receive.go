package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/qvcloud/xmlbroker"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

type ReceiveCmd struct {
	flags *Flags
	conn  connection

	timeout time.Duration
	indent  int
}

// NewReceiveCmd creates a new receive command
func NewReceiveCmd(flags *Flags) *ReceiveCmd {
	return &ReceiveCmd{flags: flags}
}

// Register adds the receive command to the application
func (cmd *ReceiveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "receive",
		Usage:     "Wait for one XML document and print it",
		UsageText: "xmlbroker receive [--broker URI] [--user U --password P] [--destination D] [--topic] [--timeout 30s]",
		Description: `Blocks until one message arrives on the destination, then prints it.

Without --timeout (or receive_timeout in the profile) the wait is unbounded.
Topic receivers only see documents published after they subscribe.`,
		Flags: append(cmd.conn.flags(),
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "give up after this long (0 waits forever)",
				Sources:     cli.EnvVars("XMLBROKER_RECEIVE_TIMEOUT"),
				Destination: &cmd.timeout,
			},
			&cli.IntFlag{
				Name:        "indent",
				Usage:       "pretty-print with this many spaces per level",
				Destination: &cmd.indent,
			},
		),
		Action: cmd.run,
	})

	return app
}

func (cmd *ReceiveCmd) run(ctx context.Context, c *cli.Command) error {
	cmd.conn.parsed(c)

	comm, err := cmd.conn.communicator(cmd.flags.Profile, nil,
		xmlbroker.ReceiveTimeout(receiveTimeout(cmd.timeout, cmd.flags.Profile)),
	)
	if err != nil {
		return err
	}

	log.Debug().Stringer("communicator", comm).Msg("waiting for a document")

	doc, err := xmlbroker.ReceiveOne(ctx, comm)
	if err != nil {
		return err
	}

	if cmd.indent > 0 {
		doc, err = xmlbroker.XMLCodec{Indent: cmd.indent}.Decode(doc)
		if err != nil {
			return err
		}
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "Received File:\n%s\n", doc)
	return nil
}
