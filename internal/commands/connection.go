package commands

import (
	"slices"
	"strings"
	"time"

	"github.com/qvcloud/xmlbroker"
	"github.com/qvcloud/xmlbroker/brokers/kafka"
	"github.com/qvcloud/xmlbroker/brokers/nats"
	"github.com/qvcloud/xmlbroker/brokers/rabbitmq"
	"github.com/qvcloud/xmlbroker/brokers/redis"
	"github.com/qvcloud/xmlbroker/internal/profile"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// drivers maps an address scheme to the transport that serves it.
var drivers = map[string]xmlbroker.TransportFactory{
	"amqp":   rabbitmq.NewTransport,
	"amqps":  rabbitmq.NewTransport,
	"tcp":    rabbitmq.NewTransport,
	"nats":   nats.NewTransport,
	"tls":    nats.NewTransport,
	"redis":  redis.NewTransport,
	"rediss": redis.NewTransport,
	"kafka":  kafka.NewTransport,
}

// connection holds the flags shared by publish and receive. Empty values
// fall back to the profile.
type connection struct {
	broker      string
	user        string
	password    string
	destination string
	topic       bool
	clientID    string

	// topicSet is true when --topic was given, so --topic=false can
	// override a profile that selects a topic.
	topicSet bool
}

func (c *connection) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "broker",
			Aliases:     []string{"b"},
			Usage:       "broker address, e.g. amqp://localhost:5672/ or nats://localhost:4222",
			Sources:     cli.EnvVars("XMLBROKER_BROKER"),
			Destination: &c.broker,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "user name (blank connects anonymously)",
			Sources:     cli.EnvVars("XMLBROKER_USER"),
			Destination: &c.user,
		},
		&cli.StringFlag{
			Name:        "password",
			Aliases:     []string{"p"},
			Usage:       "password (blank sends an empty password)",
			Sources:     cli.EnvVars("XMLBROKER_PASSWORD"),
			Destination: &c.password,
		},
		&cli.StringFlag{
			Name:        "destination",
			Aliases:     []string{"d"},
			Usage:       "queue or topic name",
			Sources:     cli.EnvVars("XMLBROKER_DESTINATION"),
			Destination: &c.destination,
		},
		&cli.BoolFlag{
			Name:        "topic",
			Aliases:     []string{"t"},
			Usage:       "treat the destination as a topic instead of a queue",
			Sources:     cli.EnvVars("XMLBROKER_TOPIC"),
			Destination: &c.topic,
		},
		&cli.StringFlag{
			Name:        "client-id",
			Usage:       "client name reported to the broker",
			Sources:     cli.EnvVars("XMLBROKER_CLIENT_ID"),
			Destination: &c.clientID,
		},
	}
}

// parsed records which flags the command line set.
func (c *connection) parsed(cmd *cli.Command) {
	c.topicSet = cmd.IsSet("topic")
}

// merge fills unset values from p.
func (c *connection) merge(p *profile.Profile) {
	if p == nil {
		return
	}
	if c.broker == "" {
		c.broker = p.Broker
	}
	if c.user == "" {
		c.user = p.Username
		if c.password == "" {
			c.password = p.Password
		}
	}
	if c.destination == "" {
		c.destination = p.Destination
	}
	if !c.topicSet {
		c.topic = p.Topic
	}
	if c.clientID == "" {
		c.clientID = p.ClientID
	}
}

// communicator builds a Communicator for the merged settings. A nil
// transport picks the driver from the address scheme.
func (c *connection) communicator(p *profile.Profile, transport xmlbroker.TransportFactory, opts ...xmlbroker.Option) (*xmlbroker.Communicator, error) {
	c.merge(p)

	cfg, err := xmlbroker.ParseConfig(c.broker, c.user, c.password, c.destination, c.topic)
	if err != nil {
		return nil, err
	}

	if transport == nil {
		transport = drivers[cfg.Scheme()]
	}

	base := []xmlbroker.Option{
		xmlbroker.WithTransport(transport),
		xmlbroker.WithLogger(log.With().Str("component", "xmlbroker").Logger()),
		xmlbroker.ClientID(c.clientID),
	}
	return xmlbroker.NewCommunicator(cfg, append(base, opts...)...)
}

func receiveTimeout(flag time.Duration, p *profile.Profile) time.Duration {
	if flag > 0 || p == nil {
		return flag
	}
	return p.ReceiveTimeout
}

func schemes() string {
	names := make([]string, 0, len(drivers))
	for s := range drivers {
		names = append(names, s)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
