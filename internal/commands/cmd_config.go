package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/qvcloud/xmlbroker/internal/profile"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

type ConfigCmd struct {
	flags *Flags
	conn  connection

	timeout time.Duration
}

// NewConfigCmd creates a new config command.
func NewConfigCmd(flags *Flags) *ConfigCmd {
	return &ConfigCmd{flags: flags}
}

// Register adds the config commands to the application.
func (cmd *ConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Profile management commands",
		Commands: []*cli.Command{
			{
				Name:        "show",
				Usage:       "Print the loaded profile",
				UsageText:   "xmlbroker config show",
				Description: "Prints the profile read from --config. The password is redacted.",
				Action:      cmd.show,
			},
			{
				Name:      "save",
				Usage:     "Store connection settings in the profile",
				UsageText: "xmlbroker config save [--broker URI] [--user U --password P] [--destination D] [--topic] [--timeout 30s]",
				Description: `Merges the given flags over the loaded profile and writes the result to
--config. The file is created with mode 0600.`,
				Flags: append(cmd.conn.flags(),
					&cli.DurationFlag{
						Name:        "timeout",
						Usage:       "default receive timeout",
						Destination: &cmd.timeout,
					},
				),
				Action: cmd.save,
			},
		},
	})

	return app
}

func (cmd *ConfigCmd) show(ctx context.Context, c *cli.Command) error {
	if cmd.flags.Profile == nil {
		return fmt.Errorf("profile not loaded")
	}

	p := *cmd.flags.Profile
	if p.Password != "" {
		p.Password = "********"
	}

	data, err := yaml.Marshal(&p)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "# %s\n%s", cmd.flags.ConfigPath, data)
	return nil
}

func (cmd *ConfigCmd) save(ctx context.Context, c *cli.Command) error {
	cmd.conn.parsed(c)

	base := profile.Default()
	if cmd.flags.Profile != nil {
		base = *cmd.flags.Profile
	}

	cmd.conn.merge(&base)
	next := profile.Profile{
		Broker:         cmd.conn.broker,
		Username:       cmd.conn.user,
		Password:       cmd.conn.password,
		Destination:    cmd.conn.destination,
		Topic:          cmd.conn.topic,
		ReceiveTimeout: receiveTimeout(cmd.timeout, &base),
		ClientID:       cmd.conn.clientID,
		LogLevel:       base.LogLevel,
	}

	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if err := next.Save(cmd.flags.ConfigPath); err != nil {
		return err
	}

	cmd.flags.Profile = &next
	_, _ = fmt.Fprintf(c.Root().Writer, "Saved profile to %s\n", cmd.flags.ConfigPath)
	return nil
}
