package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/qvcloud/xmlbroker/internal/commands"
	"github.com/qvcloud/xmlbroker/internal/profile"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	if err := setupLogger("info", ""); err != nil {
		panic(err)
	}

	var (
		ctx   = context.Background()
		flags = &commands.Flags{}
	)

	app := &cli.Command{
		Name:      "xmlbroker",
		Usage:     "Send and receive XML documents through a message broker",
		UsageText: "xmlbroker [global options] command [command options]",
		Description: `xmlbroker uploads an XML file to a queue or topic as one text message, and
waits for one document on a queue or topic and prints it.

Supported brokers are picked by the address scheme: amqp, amqps and tcp for
RabbitMQ, nats and tls for NATS, redis and rediss for Redis, kafka for Kafka.

Connection settings may be stored with 'xmlbroker config save'.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("XMLBROKER_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("XMLBROKER_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to profile",
				Sources:     cli.EnvVars("XMLBROKER_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			p, err := profile.Load(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load profile: %w", err)
			}
			flags.Profile = p

			// The flag wins over the profile.
			level := flags.LogLevel
			if level == "" {
				level = p.LogLevel
			}
			if err := setupLogger(level, flags.LogFile); err != nil {
				return ctx, err
			}

			log.Debug().Str("config", flags.ConfigPath).Msg("profile loaded")
			return ctx, nil
		},
	}

	app = commands.NewPublishCmd(flags).Register(app)
	app = commands.NewReceiveCmd(flags).Register(app)
	app = commands.NewConfigCmd(flags).Register(app)

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, commands.Describe(err))
		exitCode = 1
	}

	os.Exit(exitCode)
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		// Write to both console and file
		output = io.MultiWriter(
			zerolog.ConsoleWriter{Out: os.Stderr},
			file,
		)
	}

	log.Logger = log.Output(output).Level(parsedLevel)

	return nil
}
