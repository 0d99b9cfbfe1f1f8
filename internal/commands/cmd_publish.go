package commands

import (
	"context"
	"fmt"

	"github.com/qvcloud/xmlbroker"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

type PublishCmd struct {
	flags *Flags
	conn  connection

	dryRun bool
}

// NewPublishCmd creates a new publish command
func NewPublishCmd(flags *Flags) *PublishCmd {
	return &PublishCmd{flags: flags}
}

// Register adds the publish command to the application
func (cmd *PublishCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "publish",
		Usage:     "Send an XML file to a queue or topic",
		UsageText: "xmlbroker publish [--broker URI] [--user U --password P] [--destination D] [--topic] FILE",
		Description: `Parses FILE as XML and sends its canonical form as a single text message.

Nothing is sent when the file is not well-formed XML. Use --dry-run to check
a file without contacting a broker.`,
		Flags: append(cmd.conn.flags(),
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "validate and encode the file without sending it",
				Destination: &cmd.dryRun,
			},
		),
		Action: cmd.run,
	})

	return app
}

func (cmd *PublishCmd) run(ctx context.Context, c *cli.Command) error {
	cmd.conn.parsed(c)

	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one FILE argument, got %d", c.Args().Len())
	}
	path := c.Args().First()

	var transport xmlbroker.TransportFactory
	if cmd.dryRun {
		transport = xmlbroker.NewNoopTransport(&xmlbroker.NoopTransport{})
		cmd.conn.merge(cmd.flags.Profile)
		if cmd.conn.broker == "" {
			cmd.conn.broker = "noop://dry-run"
		}
		if cmd.conn.destination == "" {
			cmd.conn.destination = "dry-run"
		}
	}

	comm, err := cmd.conn.communicator(cmd.flags.Profile, transport)
	if err != nil {
		return err
	}

	log.Debug().Str("file", path).Stringer("communicator", comm).Msg("publishing")

	if err := xmlbroker.Publish(ctx, comm, path); err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.dryRun {
		_, _ = fmt.Fprintf(out, "%s is well-formed XML (not sent)\n", path)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Published %s to %s\n", path, comm.Destination())
	return nil
}
